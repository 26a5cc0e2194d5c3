package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limlog/internal/model"
)

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msids.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
AOPCADMD:
  owner: PCAD
  description: PCAD mode
" 4HILSA ":
  owner: HRC
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	md, err := table.Resolve(context.Background(), "aopcadmd")
	require.NoError(t, err)
	assert.Equal(t, model.Metadata{Owner: "PCAD", Description: "PCAD mode"}, md)

	md, err = table.Resolve(context.Background(), "4HILSA")
	require.NoError(t, err)
	assert.Equal(t, "HRC", md.Owner)

	_, err = table.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRemembersAnswers(t *testing.T) {
	calls := map[string]int{}
	backend := Func(func(_ context.Context, id string) (model.Metadata, error) {
		calls[id]++
		switch id {
		case "known":
			return model.Metadata{Owner: "EPS", Description: "bus"}, nil
		case "flaky":
			return model.Metadata{}, errors.New("connection reset")
		}
		return model.Metadata{}, ErrNotFound
	})
	c, err := NewCached(backend, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		md, err := c.Resolve(context.Background(), "known")
		require.NoError(t, err)
		assert.Equal(t, "EPS", md.Owner)

		_, err = c.Resolve(context.Background(), "unknown")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = c.Resolve(context.Background(), "flaky")
		assert.Error(t, err)
	}
	assert.Equal(t, 1, calls["known"])
	assert.Equal(t, 1, calls["unknown"])
	assert.Equal(t, 3, calls["flaky"], "transient errors are not cached")
}

func TestSafeNeverFails(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, model.UnknownMetadata(), NewSafe(nil, nil).Lookup(ctx, "x"))

	failing := NewSafe(Func(func(context.Context, string) (model.Metadata, error) {
		return model.Metadata{}, errors.New("db down")
	}), nil)
	assert.Equal(t, model.UnknownMetadata(), failing.Lookup(ctx, "x"))

	panicking := NewSafe(Func(func(context.Context, string) (model.Metadata, error) {
		panic("boom")
	}), nil)
	assert.Equal(t, model.UnknownMetadata(), panicking.Lookup(ctx, "x"))

	partial := NewSafe(Table{"x": {Owner: "ACIS"}}, nil)
	md := partial.Lookup(ctx, "X")
	assert.Equal(t, "ACIS", md.Owner)
	assert.Equal(t, model.NotKnown, md.Description)
}
