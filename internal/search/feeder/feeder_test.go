package feeder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	"namereg/internal/platform/logger"
	"namereg/internal/queue"
	"namereg/internal/search/solr"
)

type fakeIndex struct {
	upserts [][]solr.Document
	deletes []string
}

func (f *fakeIndex) Upsert(_ context.Context, docs []solr.Document) error {
	f.upserts = append(f.upserts, docs)
	return nil
}

func (f *fakeIndex) DeleteByNRNum(_ context.Context, nrNum string) error {
	f.deletes = append(f.deletes, nrNum)
	return nil
}

type storeSource struct{ st store.RequestStore }

func (s storeSource) Get(ctx context.Context, nrNum string) (*nrmodels.Request, error) {
	return s.st.GetByNRNum(ctx, nrNum)
}

func TestFeederIndexesAcceptedNames(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Create(context.Background(), &nrmodels.Request{
		NRNum: "NR 1234567",
		State: nrmodels.StateApproved,
		Names: []nrmodels.Name{
			{Choice: 1, Name: "PACIFIC WIDGETS LTD.", State: nrmodels.NameStateApproved},
			{Choice: 2, Name: "WIDGETS WEST LTD.", State: nrmodels.NameStateRejected},
		},
	})
	require.NoError(t, err)

	idx := &fakeIndex{}
	f := New(storeSource{st}, idx, logger.New())

	value, _ := json.Marshal(queue.SearchFeedEvent{NRNum: "NR 1234567"})
	require.NoError(t, f.Handle(context.Background(), []byte("NR 1234567"), value))

	require.Len(t, idx.upserts, 1)
	require.Len(t, idx.upserts[0], 1)
	assert.Equal(t, "NR 1234567-1", idx.upserts[0][0].ID)
	assert.Equal(t, "PACIFIC WIDGETS LTD.", idx.upserts[0][0].Name)
	assert.Empty(t, idx.deletes)
}

func TestFeederDeletesOnRemoval(t *testing.T) {
	idx := &fakeIndex{}
	f := New(storeSource{store.NewMemory()}, idx, logger.New())

	require.NoError(t, f.Apply(context.Background(), queue.SearchFeedEvent{NRNum: "NR 7654321", Deleted: true}))
	assert.Equal(t, []string{"NR 7654321"}, idx.deletes)
}

func TestFeederDeletesWhenNoAcceptedNames(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Create(context.Background(), &nrmodels.Request{
		NRNum: "NR 1111111",
		State: nrmodels.StateRejected,
		Names: []nrmodels.Name{
			{Choice: 1, Name: "DECLINED VENTURES INC.", State: nrmodels.NameStateRejected},
		},
	})
	require.NoError(t, err)

	idx := &fakeIndex{}
	f := New(storeSource{st}, idx, logger.New())

	require.NoError(t, f.Apply(context.Background(), queue.SearchFeedEvent{NRNum: "NR 1111111"}))
	assert.Empty(t, idx.upserts)
	assert.Equal(t, []string{"NR 1111111"}, idx.deletes)
}

func TestFeederRejectsMalformedEvent(t *testing.T) {
	f := New(storeSource{store.NewMemory()}, &fakeIndex{}, logger.New())
	err := f.Handle(context.Background(), nil, []byte("{not json"))
	require.Error(t, err)
}
