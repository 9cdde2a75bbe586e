package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]ports.RecordStore {
	t.Helper()
	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), "dashcam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]ports.RecordStore{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func sample(name string) model.VideoRecord {
	return model.VideoRecord{
		Title:           "2025/03/01 - 08:15",
		FileName:        name,
		DurationSeconds: 42,
		CreatedAt:       time.Date(2025, 3, 1, 8, 15, 0, 0, time.UTC),
	}
}

func TestUpdateTitleRoundTrip(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			addr := "26.300000,50.100000"
			rec := sample("1.mp4")
			rec.Address = &addr
			rec.Coordinates = &model.LatLng{Lat: 26.3, Lng: 50.1}

			id, err := s.Insert(ctx, rec)
			require.NoError(t, err)
			before, err := s.Get(ctx, id)
			require.NoError(t, err)

			require.NoError(t, s.UpdateTitle(ctx, id, "New Name"))

			page, err := s.Query(ctx, 0, 10, false)
			require.NoError(t, err)
			require.Len(t, page, 1)
			after := page[0]
			assert.Equal(t, "New Name", after.Title)

			after.Title = before.Title
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("fields other than title changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestQueryPagesInInsertionOrder(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []int64
			for _, f := range []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4"} {
				id, err := s.Insert(ctx, sample(f))
				require.NoError(t, err)
				ids = append(ids, id)
			}
			require.NoError(t, s.MarkSubmitted(ctx, []int64{ids[1], ids[3]}))

			p0, err := s.Query(ctx, 0, 2, false)
			require.NoError(t, err)
			p2, err := s.Query(ctx, 2, 2, false)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.mp4", "b.mp4"}, fileNames(p0))
			assert.Equal(t, []string{"e.mp4"}, fileNames(p2))

			sub, err := s.Query(ctx, 0, 10, true)
			require.NoError(t, err)
			assert.Equal(t, []string{"b.mp4", "d.mp4"}, fileNames(sub))

			empty, err := s.Query(ctx, 9, 10, false)
			require.NoError(t, err)
			assert.Empty(t, empty)

			_, err = s.Query(ctx, 0, 0, false)
			assert.Error(t, err)
		})
	}
}

func TestMutationsReportIntegrityFaults(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Insert(ctx, sample("x.mp4"))
			require.NoError(t, err)

			var ie *model.IntegrityError
			err = s.UpdateTitle(ctx, id+100, "ghost")
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, int64(1), ie.Expected)
			assert.Equal(t, int64(0), ie.Actual)
			assert.ErrorIs(t, err, model.ErrPersistence)

			assert.ErrorIs(t, s.UpdateAddress(ctx, id+100, "a"), model.ErrPersistence)
			assert.ErrorIs(t, s.UpdateCoordinates(ctx, id+100, model.LatLng{}), model.ErrPersistence)

			err = s.Delete(ctx, []int64{id, id + 100})
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, int64(2), ie.Expected)
			assert.Equal(t, int64(1), ie.Actual)

			_, err = s.Get(ctx, id)
			require.NoError(t, err, "a failed batch deletes nothing")

			_, err = s.Get(ctx, id+100)
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestSubmittedIsMonotonic(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Insert(ctx, sample("m.mp4"))
			require.NoError(t, err)
			require.NoError(t, s.MarkSubmitted(ctx, []int64{id, id}))
			require.NoError(t, s.MarkSubmitted(ctx, []int64{id}))
			rec, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.True(t, rec.Submitted)
		})
	}
}

func TestPendingAddressAndDelete(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := s.Insert(ctx, sample("a.mp4"))
			require.NoError(t, err)
			b, err := s.Insert(ctx, sample("b.mp4"))
			require.NoError(t, err)
			require.NoError(t, s.UpdateAddress(ctx, b, "Main St, Town"))

			pending, err := s.PendingAddress(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, a, pending[0].ID)

			require.NoError(t, s.Delete(ctx, []int64{a, b}))
			all, err := s.Query(ctx, 0, 10, false)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestDuplicateFileNameRejected(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Insert(context.Background(), sample("dup.mp4"))
			require.NoError(t, err)
			_, err = s.Insert(context.Background(), sample("dup.mp4"))
			assert.ErrorIs(t, err, model.ErrPersistence)
		})
	}
}

func fileNames(recs []model.VideoRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.FileName
	}
	return out
}
