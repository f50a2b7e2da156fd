//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboarding/pkg/testutil/containers"
)

func TestPostgresStoreSuite(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	suite.Run(t, &RepositorySuite{newStore: func() repository {
		if err := pg.Truncate(context.Background(), "applications"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgres(pg.DB)
	}})
}
