package packagemgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPackageListParsesUVOutput(t *testing.T) {
	s := New(ManagerUV, "/project")
	s.run = func(ctx context.Context, cwd, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "/project", cwd)
		assert.Equal(t, "uv", name)
		return []byte(`[{"name":"marimo","version":"0.9.0"},{"name":"numpy","version":"2.1.0"}]`), nil
	}

	pkgs, err := s.GetPackageList(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "marimo", pkgs[0].Name)
	assert.Equal(t, "0.9.0", pkgs[0].Version)
}

func TestGetDependencyTreeWalksRequires(t *testing.T) {
	s := New(ManagerPip, "/project")
	calls := 0
	s.run = func(ctx context.Context, cwd, name string, args ...string) ([]byte, error) {
		calls++
		target := args[len(args)-1]
		if target == "marimo" {
			return []byte("Name: marimo\nVersion: 0.9.0\nRequires: click, starlette\n"), nil
		}
		return []byte("Name: " + target + "\nVersion: 1.0.0\nRequires: \n"), nil
	}

	tree, err := s.GetDependencyTree(context.Background(), "marimo")
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", tree.Version)
	require.Len(t, tree.Dependencies, 2)
	assert.Equal(t, 3, calls)
}
