package collection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgvec/imgvec/internal/embeddings"
	"github.com/imgvec/imgvec/internal/record"
	"github.com/imgvec/imgvec/internal/server"
	"github.com/imgvec/imgvec/internal/storage"
)

// solidPNG renders a 16x16 single-color PNG.
func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func redPNG(t *testing.T) []byte    { return solidPNG(t, color.RGBA{R: 255, A: 255}) }
func bluePNG(t *testing.T) []byte   { return solidPNG(t, color.RGBA{B: 255, A: 255}) }
func orangePNG(t *testing.T) []byte { return solidPNG(t, color.RGBA{R: 255, G: 128, A: 255}) }

func openLocal(t *testing.T, name string) *Collection {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	coll, err := Open(context.Background(), name, store, embeddings.NewPixelEmbedder())
	require.NoError(t, err)
	return coll
}

func TestOpenRejectsBadName(t *testing.T) {
	store, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var ve *record.ValidationError
	_, err = Open(context.Background(), "no spaces allowed", store, embeddings.NewPixelEmbedder())
	require.ErrorAs(t, err, &ve)
}

func TestInsertAndQuery(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	outcome, err := coll.InsertImage(ctx, "cat.png", redPNG(t), record.Metadata{"extension": record.String(".png")})
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, outcome)

	outcome, err = coll.InsertImage(ctx, "dog.png", bluePNG(t), record.Metadata{"extension": record.String(".png")})
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, outcome)

	rs, err := coll.Query(ctx, orangePNG(t), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, rs.TotalMatches)
	require.NotEmpty(t, rs.Matches)
	assert.Equal(t, "cat.png", rs.Matches[0].IdentityKey)
	assert.Greater(t, rs.Matches[0].Score, rs.Matches[len(rs.Matches)-1].Score)
	assert.True(t, rs.Matches[0].Metadata.Equal(record.Metadata{"extension": record.String(".png")}))
}

func TestInsertDuplicateOutcome(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	outcome, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, outcome)

	// Same key with different bytes: the original record wins.
	outcome, err = coll.InsertImage(ctx, "cat.png", bluePNG(t), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.DuplicateIgnored, outcome)

	rs, err := coll.Query(ctx, redPNG(t), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.TotalMatches)
	require.Len(t, rs.Matches, 1)
	assert.InDelta(t, 1.0, rs.Matches[0].Score, 1e-6)
}

func TestInsertRejectsUndecodableImage(t *testing.T) {
	coll := openLocal(t, "Animals")

	var ve *record.ValidationError
	_, err := coll.InsertImage(context.Background(), "junk.bin", []byte("not an image"), nil)
	require.ErrorAs(t, err, &ve)
}

func TestQueryFilterNarrowsMatchesNotCount(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	_, err := coll.InsertImage(ctx, "cat.png", redPNG(t), record.Metadata{"kind": record.String("cat")})
	require.NoError(t, err)
	_, err = coll.InsertImage(ctx, "lion.png", orangePNG(t), record.Metadata{"kind": record.String("cat")})
	require.NoError(t, err)
	_, err = coll.InsertImage(ctx, "dog.png", bluePNG(t), record.Metadata{"kind": record.String("dog")})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Filter = record.Filter{"kind": record.String("dog")}

	rs, err := coll.Query(ctx, redPNG(t), opts)
	require.NoError(t, err)

	// All three clear the zero threshold, so the count stays at 3 even
	// though the filter leaves a single ranked match.
	assert.Equal(t, 3, rs.TotalMatches)
	require.Len(t, rs.Matches, 1)
	assert.Equal(t, "dog.png", rs.Matches[0].IdentityKey)
}

func TestQueryTopNZeroYieldsEmptyRanking(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	_, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)

	rs, err := coll.Query(ctx, redPNG(t), QueryOptions{TopN: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.TotalMatches)
	assert.Empty(t, rs.Matches)
}

func TestQueryDoesNotPersistQueryImage(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	_, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)

	_, err = coll.Query(ctx, orangePNG(t), DefaultOptions())
	require.NoError(t, err)

	rs, err := coll.Query(ctx, redPNG(t), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.TotalMatches)
}

func TestReset(t *testing.T) {
	coll := openLocal(t, "Animals")
	ctx := context.Background()

	_, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)

	require.NoError(t, coll.Reset(ctx))

	rs, err := coll.Query(ctx, redPNG(t), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, rs.TotalMatches)

	// The identity key is available again.
	outcome, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, outcome)
}

// openRemote starts an in-process server over its own store and returns
// a collection backed by the HTTP proxy.
func openRemote(t *testing.T, name string) *Collection {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(server.New(store, embeddings.NewPixelEmbedder()).Handler())
	t.Cleanup(srv.Close)

	coll, err := Open(context.Background(), name, storage.NewHTTP(srv.URL), embeddings.NewPixelEmbedder())
	require.NoError(t, err)
	return coll
}

func TestRemoteParity(t *testing.T) {
	ctx := context.Background()
	local := openLocal(t, "Animals")
	remote := openRemote(t, "Animals")

	for _, coll := range []*Collection{local, remote} {
		_, err := coll.InsertImage(ctx, "cat.png", redPNG(t), record.Metadata{"kind": record.String("cat")})
		require.NoError(t, err)
		_, err = coll.InsertImage(ctx, "dog.png", bluePNG(t), record.Metadata{"kind": record.String("dog")})
		require.NoError(t, err)
	}

	localRS, err := local.Query(ctx, orangePNG(t), DefaultOptions())
	require.NoError(t, err)
	remoteRS, err := remote.Query(ctx, orangePNG(t), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, localRS.TotalMatches, remoteRS.TotalMatches)
	require.Len(t, remoteRS.Matches, len(localRS.Matches))
	for i := range localRS.Matches {
		assert.Equal(t, localRS.Matches[i].IdentityKey, remoteRS.Matches[i].IdentityKey)
		assert.InDelta(t, localRS.Matches[i].Score, remoteRS.Matches[i].Score, 1e-6)
		assert.Equal(t, localRS.Matches[i].Payload, remoteRS.Matches[i].Payload)
	}
}

func TestRemoteDuplicateOutcome(t *testing.T) {
	coll := openRemote(t, "Animals")
	ctx := context.Background()

	outcome, err := coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, outcome)

	outcome, err = coll.InsertImage(ctx, "cat.png", redPNG(t), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.DuplicateIgnored, outcome)
}

func TestRemoteResetNotSupported(t *testing.T) {
	coll := openRemote(t, "Animals")

	err := coll.Reset(context.Background())
	assert.True(t, errors.Is(err, storage.ErrNotSupported))
}
