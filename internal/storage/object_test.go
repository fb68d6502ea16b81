/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "runs/2026/b.json", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "runs/2026/a.json", []byte("a")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "runs/2026/a.json")
	if err != nil || string(got) != "a" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if _, err := store.Get(ctx, "runs/missing.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("missing key error = %v", err)
	}
	keys, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"runs/2026/a.json", "runs/2026/b.json"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("List() = %v, want %v", keys, want)
	}
}

func TestFileStoreKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, _ := NewFileStore(root)
	if err := store.Put(context.Background(), "../../escape.json", []byte("x")); err != nil {
		t.Fatal(err)
	}
	keys, _ := store.List(context.Background(), "")
	if len(keys) != 1 || keys[0] != "escape.json" {
		t.Errorf("keys = %v, want escape.json inside root", keys)
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3StorePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3Store(fake, "media-reports", "janitor")

	if err := store.Put(ctx, "runs/x.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["janitor/runs/x.json"]; !ok {
		t.Fatalf("object stored under %v", fake.objects)
	}
	data, err := store.Get(ctx, "runs/x.json")
	if err != nil || string(data) != "{}" {
		t.Fatalf("Get() = %q, %v", data, err)
	}
	if _, err := store.Get(ctx, "runs/none.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("missing key error = %v", err)
	}
	keys, err := store.List(ctx, "runs/")
	if err != nil || len(keys) != 1 || keys[0] != "runs/x.json" {
		t.Errorf("List() = %v, %v", keys, err)
	}
}
