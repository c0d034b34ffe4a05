package warren

import "errors"

var (
	// ErrUnknownBucket is returned by every facade operation whose bucket
	// name does not resolve to a live bucket. The failure is final for
	// that call; nothing is retried internally.
	ErrUnknownBucket = errors.New("warren: unknown bucket")

	// ErrBucketExists is returned by StartBucket when the name already
	// has a live bucket.
	ErrBucketExists = errors.New("warren: bucket already exists")

	// ErrBucketName is returned by StartBucket for an empty bucket name.
	ErrBucketName = errors.New("warren: bucket name must not be empty")
)
