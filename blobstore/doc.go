// Package blobstore mirrors saved tree files to storage outside the local disk.
//
// A Store holds whole files by name. Trees push their "-saved.dat" file after
// every successful save and pull it back on a node that has no local copy.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: process-local map, for tests and single-process setups
//   - LocalStore: a directory on a (possibly network-mounted) file system
//   - CachingStore: read-through cache in front of a slower remote store
//   - s3.Store: Amazon S3 with multipart uploads and CRC32C checksums
//   - s3.CommitStore: S3 objects plus a DynamoDB generation pointer
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Generations
//
// Stores that also implement Committer keep every upload under a unique
// name and move a pointer to it only once the upload is complete, so a
// concurrent restore never sees a half-written mirror.
package blobstore
