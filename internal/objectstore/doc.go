// Package objectstore mirrors digest artifacts to S3-compatible storage
// (MinIO, AWS S3, R2) through minio-go. Local artifacts under out_dir remain
// the source of truth; the mirror is best-effort and its failures never fail
// a run.
package objectstore
