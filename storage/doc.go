// Package storage declares the read-it-later-anator content bucket, which
// holds article snapshots and media, and verifies a deployed bucket against
// that declaration.
//
// The bucket is encrypted with S3-managed keys and blocks all public access.
// Browsers upload into it directly, so it carries a CORS rule allowing GET,
// PUT and POST. Two lifecycle rules keep storage cost bounded:
//
//   - DeleteOldVersions expires non-current object versions after 90 days.
//   - TransitionToIA moves objects to STANDARD_IA after 90 days and to
//     GLACIER after 180 days. It is enabled in prod only.
//
// Production buckets are versioned and retained when the stack is destroyed.
// Other environments let Pulumi empty and delete the bucket.
package storage
