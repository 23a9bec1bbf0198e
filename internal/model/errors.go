package model

import "errors"

var (
	// ErrConfiguration means a project is missing settings an operation needs.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoActiveCredential means the vault has no active key for a provider.
	ErrNoActiveCredential = errors.New("no active credential")
	// ErrProvider wraps failures returned by a vendor backend.
	ErrProvider = errors.New("provider error")
	// ErrMalformedResponse means structured output could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRemoteIntegration wraps non-success responses from the CMS.
	ErrRemoteIntegration = errors.New("remote integration error")
	// ErrAlreadyPublished is returned when an article has already been committed as published.
	ErrAlreadyPublished = errors.New("article already published")
	// ErrPartialPublish means the CMS accepted a post but the local commit failed.
	ErrPartialPublish = errors.New("remote post created but local commit failed")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)
