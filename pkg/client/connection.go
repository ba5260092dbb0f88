package client

import (
	"net/http"
	"strings"
	"time"
)

type ApiConnectionDetails struct {
	// Base url of the job runner, e.g. http://localhost:5000
	JobRunnerUrl string
	// Timeout applied to each individual request
	RequestTimeout time.Duration
}

// Client talks to the jobs api of a job runner over http.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(details *ApiConnectionDetails) *Client {
	return &Client{
		baseUrl:    strings.TrimSuffix(details.JobRunnerUrl, "/"),
		httpClient: &http.Client{Timeout: details.RequestTimeout},
	}
}
