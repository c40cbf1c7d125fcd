// Package netcache implements a read-only provider that fetches support
// files from an S3-compatible bucket into a local cache directory.
//
// A name is fetched at most once: successful downloads are kept on disk and
// served from there afterwards, and keys the bucket does not hold are
// remembered as missing for the lifetime of the Cache.
package netcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 30 * time.Second

const formatPrefix = "formats/"

// Client is the subset of the S3 API the cache uses. *s3.Client
// satisfies it.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Region string
	// Endpoint overrides the AWS endpoint, for S3-compatible stores.
	Endpoint string
	// PathStyle addresses buckets as ENDPOINT/BUCKET instead of by host.
	PathStyle bool
}

// NewClient builds an anonymous S3 client. Bundle buckets are public.
func NewClient(o ClientOptions) *s3.Client {
	opts := s3.Options{
		Region:       o.Region,
		UsePathStyle: o.PathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if o.Endpoint != "" {
		opts.BaseEndpoint = aws.String(o.Endpoint)
	}
	return s3.New(opts)
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix places every key under prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithTimeout bounds each download. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContext sets the context downloads derive from. Cancelling it
// fails every later fetch.
func WithContext(ctx context.Context) Option {
	return func(c *Cache) { c.base = ctx }
}

// Cache serves objects of one bucket, downloading them on first use.
//
// Thread-safety: Cache is safe for concurrent use; downloads are
// serialised.
type Cache struct {
	client  Client
	bucket  string
	prefix  string
	dir     string
	timeout time.Duration
	base    context.Context
	label   string

	mu      sync.Mutex
	missing map[string]struct{}
	fetches int
}

// New creates a cache for bucket that stores downloads under dir.
func New(client Client, bucket, dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		client:  client,
		bucket:  bucket,
		dir:     dir,
		timeout: DefaultTimeout,
		base:    context.Background(),
		missing: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "creating network cache %s", dir)
	}
	c.label = "s3://" + path.Join(bucket, c.prefix)
	return c, nil
}

// Describe implements provider.Describer.
func (c *Cache) Describe() string { return c.label }

// Fetches returns how many downloads were attempted.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Forget clears the record of missing keys, so they are asked for again.
func (c *Cache) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.missing)
}

func (c *Cache) objectKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return path.Join(c.prefix, key)
}

// InputOpenName implements provider.Provider.
func (c *Cache) InputOpenName(name string, sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	return c.open("", name, sink)
}

// InputOpenFormat implements provider.Provider.
func (c *Cache) InputOpenFormat(name string, sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	return c.open(formatPrefix, name, sink)
}

// InputOpenPrimary implements provider.Provider.
func (c *Cache) InputOpenPrimary(status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// OutputOpenName implements provider.Provider. The cache is read-only.
func (c *Cache) OutputOpenName(string) provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

// OutputOpenStdout implements provider.Provider.
func (c *Cache) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

func (c *Cache) open(prefix, name string, sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}
	name = provider.NormalizeName(name)
	key := prefix + name
	local := filepath.Join(c.dir, filepath.FromSlash(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.missing[key]; ok {
		return provider.NotAvailable[*provider.InputHandle]()
	}

	f, err := os.Open(local)
	if errors.Is(err, os.ErrNotExist) {
		status.Notef(sink, "downloading %s from %s", key, c.label)
		found, ferr := c.fetch(key, local)
		if ferr != nil {
			return provider.Failed[*provider.InputHandle](ferr)
		}
		if !found {
			c.missing[key] = struct{}{}
			return provider.NotAvailable[*provider.InputHandle]()
		}
		f, err = os.Open(local)
	}
	if err != nil {
		return provider.Failed[*provider.InputHandle](errs.Foreign(errs.KindIO, err))
	}
	return provider.Success(provider.NewInputHandle(name, f, provider.WithOrigin(c.label)))
}

// fetch downloads key into local. It reports false, nil when the bucket
// does not hold the key. Callers hold c.mu.
func (c *Cache) fetch(key, local string) (bool, error) {
	c.fetches++
	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()

	objectKey := c.objectKey(key)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errs.Wrap(errs.Foreign(errs.KindNetwork, err), "fetching s3://%s/%s", c.bucket, objectKey)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return false, errs.Foreign(errs.KindIO, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return false, errs.Foreign(errs.KindIO, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		return false, errs.Foreign(errs.KindIO, cerr)
	}
	if err != nil {
		return false, errs.Wrap(errs.Foreign(errs.KindNetwork, err), "fetching s3://%s/%s", c.bucket, objectKey)
	}
	if want := aws.ToInt64(out.ContentLength); out.ContentLength != nil && want != n {
		return false, errs.Wrap(errs.BadLength(int(want), int(n)), "fetching s3://%s/%s", c.bucket, objectKey)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return false, errs.Foreign(errs.KindIO, err)
	}
	return true, nil
}

// isNotFound reports whether err says the object does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// String is used in logs.
func (c *Cache) String() string {
	return fmt.Sprintf("netcache(%s -> %s)", c.label, c.dir)
}

var _ provider.Provider = (*Cache)(nil)
