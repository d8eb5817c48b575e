// Package minio mirrors saved tree files to MinIO and other S3-compatible
// object stores (Ceph, Garage, SeaweedFS) through the MinIO Go client.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "trees/")
//	t, err := rectree.New(cfg, rectree.WithBlobStore(store))
package minio
