// Package evidence builds the directory-shaped, hash-verifiable audit record
// backing a calibration certificate.
//
// The layout is a stable external interface: any auditor tool can walk a
// bundle without this engine's code. JSONL files are append-only; manifest
// and certificate are written atomically so no reader ever observes a
// half-written JSON file as valid.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink abstracts the persistence substrate of a bundle: filesystem or
// object store, as long as the layout holds.
type Sink interface {
	// Write stores a complete artifact atomically.
	Write(ctx context.Context, relPath string, data []byte) error

	// Append adds one line to an append-only JSONL artifact.
	Append(ctx context.Context, relPath string, line []byte) error

	// Read returns the full content of an artifact.
	Read(ctx context.Context, relPath string) ([]byte, error)

	// List returns all artifact paths, relative to the bundle root.
	List(ctx context.Context) ([]string, error)
}

// FSSink stores a bundle under a root directory.
type FSSink struct {
	Root string
}

// NewFSSink creates the bundle root if needed.
func NewFSSink(root string) (*FSSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create bundle root: %w", err)
	}
	return &FSSink{Root: root}, nil
}

func (s *FSSink) path(relPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(relPath))
}

// Write is atomic: temp file in the same directory, then rename.
func (s *FSSink) Write(_ context.Context, relPath string, data []byte) error {
	full := s.path(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("evidence: mkdir for %s: %w", relPath, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("evidence: temp file for %s: %w", relPath, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("evidence: write %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("evidence: close %s: %w", relPath, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("evidence: rename %s: %w", relPath, err)
	}
	return nil
}

func (s *FSSink) Append(_ context.Context, relPath string, line []byte) error {
	full := s.path(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("evidence: mkdir for %s: %w", relPath, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("evidence: open %s: %w", relPath, err)
	}
	defer f.Close()
	if _, err := f.Write(append(bytes.TrimRight(line, "\n"), '\n')); err != nil {
		return fmt.Errorf("evidence: append %s: %w", relPath, err)
	}
	return nil
}

func (s *FSSink) Read(_ context.Context, relPath string) ([]byte, error) {
	return os.ReadFile(s.path(relPath))
}

func (s *FSSink) List(_ context.Context) ([]string, error) {
	var out []string
	err := filepath.Walk(s.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: walk bundle: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// S3API is the slice of the S3 client the sink needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Sink stores a bundle under an object-store prefix. S3 PutObject is
// already atomic, so Write needs no temp/rename dance. Append is
// read-modify-write: acceptable because a bundle has exactly one sequential
// writer by design.
type S3Sink struct {
	Client S3API
	Bucket string
	Prefix string
}

// NewS3Sink builds a sink from the ambient AWS credential chain.
func NewS3Sink(ctx context.Context, bucket, prefix string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: aws config: %w", err)
	}
	return &S3Sink{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix}, nil
}

func (s *S3Sink) key(relPath string) string {
	return strings.TrimSuffix(s.Prefix, "/") + "/" + relPath
}

func (s *S3Sink) Write(ctx context.Context, relPath string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.key(relPath)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("evidence: s3 put %s: %w", relPath, err)
	}
	return nil
}

func (s *S3Sink) Append(ctx context.Context, relPath string, line []byte) error {
	existing, err := s.Read(ctx, relPath)
	if err != nil {
		existing = nil // first line
	}
	data := append(existing, append(bytes.TrimRight(line, "\n"), '\n')...)
	return s.Write(ctx, relPath, data)
}

func (s *S3Sink) Read(ctx context.Context, relPath string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(relPath)),
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: s3 get %s: %w", relPath, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Sink) List(ctx context.Context) ([]string, error) {
	prefix := strings.TrimSuffix(s.Prefix, "/") + "/"
	var keys []string
	var token *string
	for {
		out, err := s.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("evidence: s3 list: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}
