package schemastore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

type fakeClient struct {
	mu                 sync.Mutex
	objects            map[string]fakeObject
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]fakeObject)}
}

func (f *fakeClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = fakeObject{data: data, modified: time.Now()}
	return nil
}

func (f *fakeClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeClient) LastModified(ctx context.Context, bucket, key string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return time.Time{}, errObjectNotFound
	}
	return obj.modified, nil
}

func (f *fakeClient) Delete(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return errObjectNotFound
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(ctx context.Context, bucket, region string) error {
	f.createBucketCalled = true
	return nil
}

func (f *fakeClient) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func TestS3StoreRoundTripUsesPrefix(t *testing.T) {
	fake := newFakeClient()
	store, err := newS3StoreWithClient("schemas", "/chatdb/dev/", time.Hour, nil, fake)
	if err != nil {
		t.Fatalf("newS3StoreWithClient() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key, err := store.Save(ctx, "sales_postgresql", "CREATE TABLE a (\n\tid INTEGER\n)")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !fake.has("schemas/chatdb/dev/" + key) {
		t.Fatalf("object not stored under prefix, key %q", key)
	}

	got, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.HasPrefix(got, "CREATE TABLE a") {
		t.Fatalf("Load() = %q", got)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, key); !errors.Is(err, ErrExpired) {
		t.Fatalf("Load() after delete error = %v, want ErrExpired", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() of missing object error = %v", err)
	}
}

func TestS3StoreExpiresObjects(t *testing.T) {
	fake := newFakeClient()
	store, err := newS3StoreWithClient("schemas", "", 20*time.Millisecond, nil, fake)
	if err != nil {
		t.Fatalf("newS3StoreWithClient() error = %v", err)
	}
	defer store.Close()

	key, err := store.Save(context.Background(), "shop_mysql", "schema")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.has("schemas/" + key) {
		if time.Now().After(deadline) {
			t.Fatal("object was not deleted after ttl")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := store.Load(context.Background(), key); !errors.Is(err, ErrExpired) {
		t.Fatalf("Load() error = %v, want ErrExpired", err)
	}
}

func TestS3StoreLoadRejectsStaleObject(t *testing.T) {
	fake := newFakeClient()
	store, err := newS3StoreWithClient("schemas", "", time.Minute, nil, fake)
	if err != nil {
		t.Fatalf("newS3StoreWithClient() error = %v", err)
	}
	defer store.Close()

	key, err := store.Save(context.Background(), "erp_oracle", "schema")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := store.Load(context.Background(), key); !errors.Is(err, ErrExpired) {
		t.Fatalf("Load() error = %v, want ErrExpired", err)
	}
}

func TestS3StoreDeleteSurfacesErrors(t *testing.T) {
	fake := newFakeClient()
	fake.deleteErr = errors.New("access denied")
	store, err := newS3StoreWithClient("schemas", "", 0, nil, fake)
	if err != nil {
		t.Fatalf("newS3StoreWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "a_mysql_123.sql"); err == nil {
		t.Fatal("expected delete error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := newFakeClient()
	store, err := newS3StoreWithClient("schemas", "", 0, nil, fake)
	if err != nil {
		t.Fatalf("newS3StoreWithClient() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("https://minio.local:9000", false)
	if err != nil || host != "minio.local:9000" || !secure {
		t.Fatalf("parseEndpoint() = %q %v %v", host, secure, err)
	}
	host, secure, err = parseEndpoint("minio:9000", false)
	if err != nil || host != "minio:9000" || secure {
		t.Fatalf("parseEndpoint() = %q %v %v", host, secure, err)
	}
}

func TestNewS3StoreWithClientValidates(t *testing.T) {
	if _, err := newS3StoreWithClient("", "", 0, nil, newFakeClient()); err == nil {
		t.Fatal("expected bucket error")
	}
	if _, err := newS3StoreWithClient("b", "", 0, nil, nil); err == nil {
		t.Fatal("expected client error")
	}
}
