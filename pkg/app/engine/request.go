package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
)

var ErrValidation = errors.New("invalid request")

var (
	validate     *validator.Validate
	onceValidate sync.Once
)

func getValidator() *validator.Validate {
	onceValidate.Do(func() {
		validate = validator.New()
	})
	return validate
}

// SubmitRequest is an order as it arrives from outside the engine. The
// engine assigns the id.
type SubmitRequest struct {
	Side  string `json:"side" validate:"required,oneof=buy sell"`
	Type  string `json:"type" validate:"omitempty,oneof=GTC IOC"`
	Price int64  `json:"price" validate:"gte=0"`
	Qty   int64  `json:"qty" validate:"gt=0"`
}

// ValidationError lists each failing field with the rule it broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validate checks the request shape. Market rules are checked later, on the
// matching goroutine.
func (r SubmitRequest) Validate() error {
	err := getValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	return &ValidationError{Fields: fields}
}

// FieldErrors returns the per-field failures carried by err, if any.
func FieldErrors(err error) map[string]string {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	return verr.Fields
}

func (r SubmitRequest) toOrder(id uint64) (orderbook.Order, error) {
	side, err := orderbook.ParseSide(r.Side)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	tif, err := orderbook.ParseTimeInForce(r.Type)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return orderbook.NewOrder(id, side, r.Price, r.Qty, tif), nil
}
