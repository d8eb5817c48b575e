// Package s3 mirrors saved tree files to Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store := s3store.NewStore(client, "my-bucket", "trees/")
//
//	t, err := rectree.New(cfg, rectree.WithBlobStore(store))
//
// # Generations
//
// CommitStore adds a DynamoDB table that records, per tree, which uploaded
// object is current. Every save uploads under a fresh name and then commits
// it with a conditional write, so concurrent writers cannot silently
// overwrite each other and readers never see a partial upload.
package s3
