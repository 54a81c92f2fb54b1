package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

// newStore writes a segment holding "blob-42" that references a leaf segment.
func newStore(t *testing.T) (dir string, holder, leaf model.SegmentID) {
	t.Helper()
	dir = t.TempDir()
	gen := model.GCGeneration{Generation: 1, FullGeneration: 1}
	holder, leaf = model.NewDataSegmentID(), model.NewDataSegmentID()

	s, err := segstore.Open(dir, segstore.WithLogger(segstore.NoopLogger()))
	require.NoError(t, err)

	lb := segment.NewBuilder(gen)
	_, err = lb.WriteString("leaf")
	require.NoError(t, err)
	require.NoError(t, s.WriteSegment(leaf, lb.Build()))

	hb := segment.NewBuilder(gen)
	hb.Reference(leaf)
	_, err = hb.WriteInlineBlobID("blob-42")
	require.NoError(t, err)
	require.NoError(t, s.WriteSegment(holder, hb.Build()))

	require.NoError(t, s.Close())
	return dir, holder, leaf
}

func runTool(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRun_Check(t *testing.T) {
	dir, _, _ := newStore(t)

	out, err := runTool(t, "--dir", dir, "--read-only", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "store version: 2")
	assert.Contains(t, out, "segments: 2 (data 2, bulk 0)")
	assert.Contains(t, out, "graph: 1 segments with 1 edges")
}

func TestRun_Graph(t *testing.T) {
	dir, holder, leaf := newStore(t)

	out, err := runTool(t, "-d", dir, "graph")
	require.NoError(t, err)
	assert.Equal(t, holder.String()+" -> "+leaf.String()+"\n", out)

	out, err = runTool(t, "-d", dir, "graph", "--from", leaf.String())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_BlobRefs(t *testing.T) {
	dir, _, _ := newStore(t)

	out, err := runTool(t, "-d", dir, "blobrefs", "--count")
	require.NoError(t, err)
	assert.Equal(t, "blob-42\t1\n", out)
}

func TestRun_GC(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newStore(t)
	blobDir := t.TempDir()

	bs := blobstore.NewLocalStore(blobDir)
	require.NoError(t, bs.Put(ctx, "blob-42", []byte("kept")))
	require.NoError(t, bs.Put(ctx, "orphan", []byte("garbage")))

	out, err := runTool(t, "-d", dir, "--blob-store", "file://"+blobDir, "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete orphan")

	out, err = runTool(t, "-d", dir, "--blob-store", "file://"+blobDir, "--blob-cache", "1048576", "gc")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted orphan")
	assert.Contains(t, out, "listed 2, kept 1, unreferenced 1")

	names, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"blob-42"}, names)
}

func TestRun_GCNeedsBlobStore(t *testing.T) {
	dir, _, _ := newStore(t)
	_, err := runTool(t, "-d", dir, "gc")
	assert.ErrorContains(t, err, "--blob-store")
}

func TestRun_Head(t *testing.T) {
	dir, holder, _ := newStore(t)
	revs := "bolt://" + filepath.Join(t.TempDir(), "revisions.db")

	out, err := runTool(t, "-d", dir, "--revisions", revs, "head")
	require.NoError(t, err)
	assert.Equal(t, "no head\n", out)

	head := model.RecordID{Segment: holder, Number: 1}.String()
	_, err = runTool(t, "-d", dir, "--revisions", revs, "head", "set", head)
	require.NoError(t, err)

	out, err = runTool(t, "-d", dir, "--revisions", revs, "head")
	require.NoError(t, err)
	assert.Equal(t, head, strings.TrimSpace(out))

	_, err = runTool(t, "-d", dir, "--revisions", revs, "head", "set", model.NewDataSegmentID().String()+":0")
	assert.ErrorIs(t, err, segstore.ErrSegmentNotFound)
}

func TestRun_Errors(t *testing.T) {
	_, err := runTool(t)
	assert.ErrorContains(t, err, "missing command")

	_, err = runTool(t, "-d", t.TempDir(), "bogus")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runTool(t, "-d", t.TempDir(), "--log-level", "loud", "check")
	assert.ErrorContains(t, err, "--log-level")

	_, err = openBlobStore(context.Background(), "ftp://host/x", 0)
	assert.ErrorContains(t, err, "unsupported scheme")

	_, err = openRevisions(context.Background(), "dynamodb://table")
	assert.ErrorContains(t, err, "dynamodb://<table>/<store>")
}
