package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"emailtracker/internal/model"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("save: %w", &model.ValidationError{Errors: []string{"Invalid email format"}}), http.StatusBadRequest},
		{"not found", fmt.Errorf("domain x.io: %w", model.ErrNotFound), http.StatusNotFound},
		{"format", fmt.Errorf("%w: bad", model.ErrInvalidFormat), http.StatusBadRequest},
		{"io", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
