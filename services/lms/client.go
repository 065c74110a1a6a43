// Package lms is the HTTP client for the upstream learning management system
// that owns the course rosters.
package lms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/course"
)

// Client fetches rosters over the LMS REST API.
type Client struct {
	http *resty.Client
}

var _ course.RosterSource = (*Client)(nil)

func NewClient(conf core.LMSConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(conf.BaseURL).
		SetHeader("Authorization", "Bearer "+conf.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)

	return &Client{http: httpClient}
}

type rosterResponse struct {
	Courses []course.RosterCourse `json:"courses"`
}

func (c *Client) FetchRoster(ctx context.Context) ([]course.RosterCourse, error) {
	var body rosterResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/api/v1/rosters")
	if err != nil {
		return nil, errors.Wrap(err, "fetching roster")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetching roster: %s responded %s", c.http.BaseURL, resp.Status())
	}
	return body.Courses, nil
}

// FetchCourseRoster loads a single classroom by its upstream id.
func (c *Client) FetchCourseRoster(ctx context.Context, externalID string) (course.RosterCourse, error) {
	var body course.RosterCourse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/api/v1/rosters/%s", externalID))
	if err != nil {
		return course.RosterCourse{}, errors.Wrapf(err, "fetching roster %s", externalID)
	}
	if resp.IsError() {
		return course.RosterCourse{}, errors.Errorf("fetching roster %s: upstream responded %s", externalID, resp.Status())
	}
	return body, nil
}
