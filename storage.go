package greeter

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore holds deployment packages that are too large, or too
// valuable to rebuild, to send inline with CreateFunction.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte) error
	// Stat reports whether key exists, and the package's CodeSha256 if the
	// store recorded one on Put.
	Stat(ctx context.Context, key string) (Artifact, bool, error)
	Bucket() string
}

type Artifact struct {
	Key        string
	CodeSha256 string
}

const codeSha256Metadata = "Code-Sha256"

type S3ArtifactStore struct {
	client *minio.Client
	bucket string
}

// NewS3ArtifactStore signs requests with the credentials resolved for cfg.
func NewS3ArtifactStore(ctx context.Context, cfg aws.Config, endpoint, bucket string) (*S3ArtifactStore, error) {
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve aws credentials: %w", err)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store client: %w", err)
	}
	return &S3ArtifactStore{client: client, bucket: bucket}, nil
}

func (s *S3ArtifactStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/zip",
		UserMetadata: map[string]string{codeSha256Metadata: SourceCodeHash(body)},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

func (s *S3ArtifactStore) Stat(ctx context.Context, key string) (Artifact, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to stat %s in bucket %s: %w", key, s.bucket, err)
	}
	artifact := Artifact{Key: key}
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, codeSha256Metadata) {
			artifact.CodeSha256 = v
		}
	}
	return artifact, true, nil
}

func (s *S3ArtifactStore) Bucket() string {
	return s.bucket
}

func ArtifactKey(functionName, arch, contentHash string) string {
	return path.Join("greeter", functionName, arch+"-"+contentHash+".zip")
}
