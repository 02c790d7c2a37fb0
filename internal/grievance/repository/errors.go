package repository

import (
	"fmt"

	baserepo "safevoice/pkg/repository"
)

var (
	ErrIssueNotFound      = fmt.Errorf("issue: %w", baserepo.ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("assignment: %w", baserepo.ErrNotFound)
	ErrSolutionNotFound   = fmt.Errorf("solution: %w", baserepo.ErrNotFound)
	ErrResolverNotFound   = fmt.Errorf("resolver: %w", baserepo.ErrNotFound)
	ErrPrincipalNotFound  = fmt.Errorf("principal: %w", baserepo.ErrNotFound)

	ErrAlreadyAssigned = fmt.Errorf("assignment: %w", baserepo.ErrAlreadyExists)
	ErrSolutionExists  = fmt.Errorf("solution: %w", baserepo.ErrAlreadyExists)
)
