// Package s3 implements blobstore.BlobStore on Amazon S3, with an optional
// DynamoDB-backed snapshot catalog for atomic latest-snapshot commits.
package s3
