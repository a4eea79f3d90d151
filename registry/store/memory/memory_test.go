package memory

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// TestMetadataRoundTrip verifies that saving metadata and reading it back
// returns an equivalent record (∀ invariant underlying spec §8's deploy/
// invoke round trip).
func TestMetadataRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("save then get returns an equivalent function id and active version", prop.ForAll(
		func(id, version string) bool {
			st := NewMetadataStore()
			ctx := context.Background()
			meta := &types.FunctionMetadata{
				ID:            id,
				Type:          types.FunctionTypeCode,
				ActiveVersion: version,
				Versions:      []string{version},
				CreatedAt:     time.Now(),
			}
			if err := st.SaveMetadata(ctx, meta); err != nil {
				return false
			}
			got, err := st.GetMetadata(ctx, id)
			if err != nil {
				return false
			}
			return got.ID == id && got.ActiveVersion == version && got.HasVersion(version)
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestGetMetadataNotFound(t *testing.T) {
	st := NewMetadataStore()
	_, err := st.GetMetadata(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteMetadataMakesFunctionUnreachable(t *testing.T) {
	st := NewMetadataStore()
	ctx := context.Background()
	require.NoError(t, st.SaveMetadata(ctx, &types.FunctionMetadata{ID: "f1", ActiveVersion: "v1", Versions: []string{"v1"}}))
	require.NoError(t, st.DeleteMetadata(ctx, "f1"))
	_, err := st.GetMetadata(ctx, "f1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCodeStoreSaveCompiledCaching(t *testing.T) {
	st := NewCodeStore()
	ctx := context.Background()
	require.NoError(t, st.SaveArtifact(ctx, "f1", "v1", &types.CodeArtifact{Source: []byte("src")}))
	require.NoError(t, st.SaveCompiled(ctx, "f1", "v1", []byte("compiled")))
	got, err := st.GetArtifact(ctx, "f1", "v1")
	require.NoError(t, err)
	require.Equal(t, []byte("compiled"), got.CompiledSource)
	require.Equal(t, []byte("src"), got.Source)
}

func TestDeleteArtifactsRemovesAllVersions(t *testing.T) {
	st := NewCodeStore()
	ctx := context.Background()
	require.NoError(t, st.SaveArtifact(ctx, "f1", "v1", &types.CodeArtifact{Source: []byte("a")}))
	require.NoError(t, st.SaveArtifact(ctx, "f1", "v2", &types.CodeArtifact{Source: []byte("b")}))
	require.NoError(t, st.DeleteArtifacts(ctx, "f1"))
	_, err := st.GetArtifact(ctx, "f1", "v1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetArtifact(ctx, "f1", "v2")
	require.ErrorIs(t, err, store.ErrNotFound)
}
