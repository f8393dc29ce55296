package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kiranabook/backend/internal/cache"
	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

const tracerName = "kiranabook/service"

type Service struct {
	repo            store.Repository
	productCache    cache.ProductCache
	productCacheTTL time.Duration
	validate        *validator.Validate
	logger          *zap.Logger
	tracer          trace.Tracer
	now             func() time.Time
}

func New(repo store.Repository, productCache cache.ProductCache, productCacheTTL time.Duration, logger *zap.Logger) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if productCacheTTL <= 0 {
		productCacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:            repo,
		productCache:    productCache,
		productCacheTTL: productCacheTTL,
		validate:        newValidator(),
		logger:          logger.Named("service"),
		tracer:          otel.Tracer(tracerName),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) startSpan(ctx context.Context, name string, kind domain.Kind) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if kind != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("transaction.type", string(kind))))
	}
	return s.tracer.Start(ctx, name, opts...)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// invalidateProducts drops cached products after a committed write. The
// write already succeeded, so a cache failure is only logged.
func (s *Service) invalidateProducts(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.productCache.Invalidate(ctx, ids...); err != nil {
		s.logger.Warn("product cache invalidation failed", zap.Strings("product_ids", ids), zap.Error(err))
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and reports failures as store.ErrInvalid.
func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", field, e.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", store.ErrInvalid, strings.Join(messages, "; "))
}

func requireKind(kind domain.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", store.ErrInvalid, kind)
	}
	return nil
}

func idPrefix(kind domain.Kind) string {
	if kind == domain.KindEstimate {
		return "est"
	}
	return "sal"
}
