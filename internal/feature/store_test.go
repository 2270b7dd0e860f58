package feature

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore([]string{"cell-a", "cell-b", "cell-c"})
}

func TestVectorDefaults(t *testing.T) {
	s := newTestStore()

	v, err := s.Vector("cell-a")
	require.NoError(t, err)

	// Every catalog feature present with the default.
	require.Len(t, v, len(Catalog()))
	for _, key := range Catalog() {
		assert.Equal(t, DefaultValue, v[key])
	}
}

func TestVectorUnknownCell(t *testing.T) {
	s := newTestStore()
	_, err := s.Vector("nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownCell))
}

func TestSetFeature(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetFeature("cell-a", BarsCount, 4))

	v, err := s.Vector("cell-a")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v[BarsCount])
	assert.Equal(t, DefaultValue, v[NightclubsCount])

	// cell-b untouched.
	v, err = s.Vector("cell-b")
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, v[BarsCount])
}

func TestSetFeaturesUnknownCellLeavesStoreIntact(t *testing.T) {
	s := newTestStore()
	before := s.Epoch()

	err := s.SetFeatures("nope", Vector{BarsCount: 1})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownCell))
	assert.Equal(t, before, s.Epoch())
}

func TestSetFeaturesExtensionKeyRoundTrips(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetFeature("cell-a", "pawn_shops_count", 2))

	v, err := s.Vector("cell-a")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v["pawn_shops_count"])
	assert.Len(t, v, len(Catalog())+1)
}

func TestEpochAdvancesOnWrite(t *testing.T) {
	s := newTestStore()
	e0 := s.Epoch()

	require.NoError(t, s.SetFeature("cell-a", BarsCount, 1))
	e1 := s.Epoch()
	assert.Greater(t, e1, e0)

	// Empty update is a no-op.
	require.NoError(t, s.SetFeatures("cell-a", nil))
	assert.Equal(t, e1, s.Epoch())
}

func TestCompleteness(t *testing.T) {
	s := newTestStore()

	c, err := s.Completeness("cell-a")
	require.NoError(t, err)
	assert.Zero(t, c)

	require.NoError(t, s.SetFeatures("cell-a", Vector{
		BarsCount:         3,
		PopulationDensity: 1200,
		MedianIncome:      52000,
	}))
	c, err = s.Completeness("cell-a")
	require.NoError(t, err)
	assert.InDelta(t, 3.0/float64(len(Catalog())), c, 1e-9)

	// Writing the default value does not count as populated.
	require.NoError(t, s.SetFeature("cell-a", NightclubsCount, 0))
	c, err = s.Completeness("cell-a")
	require.NoError(t, err)
	assert.InDelta(t, 3.0/float64(len(Catalog())), c, 1e-9)
}

func TestMultiFeatureWriteIsAtomic(t *testing.T) {
	s := newTestStore()

	// Writers flip the whole vector between two states; readers must never
	// observe a mix.
	stateA := Vector{BarsCount: 1, NightclubsCount: 1, LiquorStoresCount: 1}
	stateB := Vector{BarsCount: 9, NightclubsCount: 9, LiquorStoresCount: 9}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			st := stateA
			if i%2 == 1 {
				st = stateB
			}
			_ = s.SetFeatures("cell-a", st)
		}
	}()

	for i := 0; i < 500; i++ {
		v, err := s.Vector("cell-a")
		require.NoError(t, err)
		bars := v[BarsCount]
		if bars == DefaultValue {
			continue // before the first write
		}
		assert.Equal(t, bars, v[NightclubsCount])
		assert.Equal(t, bars, v[LiquorStoresCount])
	}
	close(stop)
	wg.Wait()
}

func TestSnapshot(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetFeature("cell-b", StreetLightsCount, 12))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 12.0, snap["cell-b"][StreetLightsCount])
	assert.Equal(t, DefaultValue, snap["cell-a"][StreetLightsCount])

	// Snapshot is a copy: mutating it does not touch the store.
	snap["cell-a"][StreetLightsCount] = 99
	v, err := s.Vector("cell-a")
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, v[StreetLightsCount])
}

func TestGroup(t *testing.T) {
	assert.Equal(t, "alcohol_density", Group(BarsCount))
	assert.Equal(t, "alcohol_density", Group(NightclubsCount))
	assert.Equal(t, "transit_proximity", Group(NearestSubwayM))
	assert.Equal(t, "lighting", Group(StreetLightsCount))
	assert.Equal(t, "vacancy", Group(AbandonedBuildings))
	assert.Equal(t, "population", Group(PopulationDensity))
	assert.Equal(t, "socioeconomic", Group(MedianIncome))
	assert.Equal(t, "socioeconomic", Group("pawn_shops_count"))
}
