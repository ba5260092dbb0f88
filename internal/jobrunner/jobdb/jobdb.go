package jobdb

import (
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
)

const (
	jobsTable     = "jobs"
	idIndex       = "id"       // index for looking up jobs by id
	statusIndex   = "status"   // index for counting jobs in a given status
	sequenceIndex = "sequence" // index for iterating over jobs in submission order
)

// JobDb stores every job submitted to the engine for the lifetime of the process.
// It is implemented on top of https://github.com/hashicorp/go-memdb, an in-memory database built on
// immutable radix trees. Readers work on snapshots, so a lookup never sees a partially applied
// transition.
type JobDb struct {
	db *memdb.MemDB
}

func NewJobDb() (*JobDb, error) {
	db, err := memdb.NewMemDB(jobDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &JobDb{db: db}, nil
}

// Insert adds a new job. It is an error to insert a job whose id already exists.
func (jobDb *JobDb) Insert(job *Job) error {
	txn := jobDb.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(jobsTable, idIndex, job.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return errors.WithStack(&apierrors.ErrAlreadyExists{Type: "job", Value: job.Id})
	}
	if err := txn.Insert(jobsTable, job.DeepCopy()); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// GetById returns a copy of the job with the given id, or an *apierrors.ErrNotFound.
func (jobDb *JobDb) GetById(id string) (*Job, error) {
	txn := jobDb.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(jobsTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.WithStack(&apierrors.ErrNotFound{Type: "job", Value: id})
	}
	return obj.(*Job).DeepCopy(), nil
}

// Transition replaces the job with the given id by the result of applying transition to a copy of it.
// The read and the write happen in one transaction, so all fields changed by transition become visible
// to readers together. Only the execution loop should call this.
func (jobDb *JobDb) Transition(id string, transition func(job *Job) (*Job, error)) (*Job, error) {
	txn := jobDb.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(jobsTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.WithStack(&apierrors.ErrNotFound{Type: "job", Value: id})
	}
	current := obj.(*Job)
	updated, err := transition(current.DeepCopy())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if updated.Id != current.Id {
		return nil, errors.Errorf("transition changed job id from %s to %s", current.Id, updated.Id)
	}
	if err := txn.Insert(jobsTable, updated); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return updated.DeepCopy(), nil
}

// GetAll returns copies of all jobs in submission order.
func (jobDb *JobDb) GetAll() ([]*Job, error) {
	txn := jobDb.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(jobsTable, sequenceIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	result := make([]*Job, 0)
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		result = append(result, obj.(*Job).DeepCopy())
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

// CountByStatus returns the number of jobs in each status. Every status is present in the result.
func (jobDb *JobDb) CountByStatus() (map[Status]int, error) {
	txn := jobDb.db.Txn(false)
	defer txn.Abort()

	counts := make(map[Status]int, len(AllStatuses))
	for _, status := range AllStatuses {
		iter, err := txn.Get(jobsTable, statusIndex, string(status))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		n := 0
		for obj := iter.Next(); obj != nil; obj = iter.Next() {
			n++
		}
		counts[status] = n
	}
	return counts, nil
}

// Size returns the total number of jobs stored.
func (jobDb *JobDb) Size() (int, error) {
	counts, err := jobDb.CountByStatus()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Check implements health.Checker.
func (jobDb *JobDb) Check() error {
	if jobDb.db == nil {
		return errors.New("job db is not initialised")
	}
	return nil
}

func jobDbSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex, // lookup by primary key
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "Id"},
	}
	indexes[statusIndex] = &memdb.IndexSchema{
		Name:    statusIndex,
		Unique:  false,
		Indexer: &memdb.StringFieldIndex{Field: "Status"},
	}
	indexes[sequenceIndex] = &memdb.IndexSchema{
		Name:    sequenceIndex,
		Unique:  false,
		Indexer: &memdb.UintFieldIndex{Field: "Sequence"},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			jobsTable: {
				Name:    jobsTable,
				Indexes: indexes,
			},
		},
	}
}
