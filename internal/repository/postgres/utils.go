package postgresrepo

import (
	"errors"

	"github.com/kirinyoku/classbook/internal/repository"
)

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
