// Package debugarchive periodically rotates the raw HTTP request/response
// debug log (fed by httpclient.DebugHook) to gzipped NDJSON files, optionally
// uploading each rotated file to S3. The teacher's config carried S3Bucket/
// S3Region/S3Prefix fields for an "opt-in trade archiver" that its own
// internal/archive/archiver.go never actually called — here that wiring is
// completed and repurposed for vendor debug traffic instead of trades, with
// the same local-file-then-rotate shape as the teacher's archiver.
package debugarchive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Entry is one captured request or response frame.
type Entry struct {
	At        time.Time `json:"at"`
	Direction string    `json:"direction"` // "request" or "response"
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
}

// Archiver buffers debug entries and rotates them to disk (and, if
// configured, S3) on a fixed interval.
type Archiver struct {
	dir      string
	maxBytes int64
	interval time.Duration

	s3Client *s3.Client
	s3Bucket string
	s3Prefix string

	buffer chan Entry
}

// Config controls where and how debug traffic is archived.
type Config struct {
	Dir           string
	MaxMegabytes  int
	IntervalMin   int
	BufferSize    int
	S3Bucket      string
	S3Region      string
	S3Prefix      string
}

// New builds an Archiver. S3 upload is only active when cfg.S3Bucket is set.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	a := &Archiver{
		dir:      cfg.Dir,
		maxBytes: int64(cfg.MaxMegabytes) * 1 << 20,
		interval: time.Duration(cfg.IntervalMin) * time.Minute,
		s3Bucket: cfg.S3Bucket,
		s3Prefix: cfg.S3Prefix,
		buffer:   make(chan Entry, cfg.BufferSize),
	}

	if cfg.S3Bucket != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg.S3Region)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		a.s3Client = s3.NewFromConfig(awsCfg)
	}

	return a, nil
}

// Hook returns an httpclient.DebugHook-compatible function that enqueues
// each request/response frame without blocking the caller.
func (a *Archiver) Hook() func(direction, method, url string, body []byte) {
	return func(direction, method, url string, body []byte) {
		e := Entry{At: time.Now(), Direction: direction, Method: method, URL: url, Body: string(body)}
		select {
		case a.buffer <- e:
		default:
			log.Println("debugarchive: buffer full, dropping entry")
		}
	}
}

// Run drains the buffer into rotated files until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("debugarchive: dir=%s max=%dMB interval=%v s3=%v",
		a.dir, a.maxBytes>>20, a.interval, a.s3Bucket != "")

	var pending []Entry
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := a.rotateBatch(ctx, pending); err != nil {
			log.Printf("debugarchive: rotate: %v", err)
		}
		pending = nil
		a.prune()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case e, ok := <-a.buffer:
			if !ok {
				flush()
				return
			}
			pending = append(pending, e)
		}
	}
}

func (a *Archiver) rotateBatch(ctx context.Context, entries []Entry) error {
	name := time.Now().UTC().Format("20060102T150405") + ".jsonl.gz"
	path := filepath.Join(a.dir, name)

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	log.Printf("debugarchive: wrote %d entries to %s", len(entries), path)

	if a.s3Client != nil {
		if err := a.upload(ctx, name, buf.Bytes()); err != nil {
			log.Printf("debugarchive: s3 upload %s: %v", name, err)
		}
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, name string, data []byte) error {
	key := a.s3Prefix + "/" + name
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.s3Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	log.Printf("debugarchive: uploaded s3://%s/%s", a.s3Bucket, key)
	return nil
}

// prune deletes the oldest local archive files once total size exceeds
// maxBytes, mirroring the teacher archiver's rotate().
func (a *Archiver) prune() {
	if a.maxBytes <= 0 {
		return
	}

	type fileInfo struct {
		path string
		size int64
	}
	var files []fileInfo
	var total int64

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		info, err := de.Info()
		if err != nil || info.IsDir() {
			continue
		}
		p := filepath.Join(a.dir, de.Name())
		files = append(files, fileInfo{path: p, size: info.Size()})
		total += info.Size()
	}

	if total <= a.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("debugarchive: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("debugarchive: rotated out %s (%d bytes)", f.path, f.size)
	}
}
