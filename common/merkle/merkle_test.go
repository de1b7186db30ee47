package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
)

func TestRootEmpty(t *testing.T) {
	root, err := Root(nil)
	require.NoError(t, err)
	require.True(t, root.IsZero())
}

func TestRootDeterministicAndOrderSensitive(t *testing.T) {
	a := common.HashOf([]byte("tx-a"))
	b := common.HashOf([]byte("tx-b"))

	r1, err := Root([]common.Hash{a, b})
	require.NoError(t, err)
	r2, err := Root([]common.Hash{a, b})
	require.NoError(t, err)
	require.Equal(t, r1, r2)

	r3, err := Root([]common.Hash{b, a})
	require.NoError(t, err)
	require.NotEqual(t, r1, r3, "merkle root must be sensitive to leaf order")
}

func TestRootSingleLeaf(t *testing.T) {
	a := common.HashOf([]byte("solo"))
	root, err := Root([]common.Hash{a})
	require.NoError(t, err)
	require.False(t, root.IsZero())
}
