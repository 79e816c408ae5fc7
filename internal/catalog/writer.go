// Package catalog implements the write and read paths over the Credential
// Store and the Blob Store.
//
// A create touches two stores with no shared transaction. The order is fixed:
// uniqueness check, image upload, metadata insert, owner link. A failed insert
// deletes the uploaded image again. A failed owner link is not rolled back;
// the movie stays committed and the failure is reported out of band.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/cinelog/catalog-api/internal/blob"
	"github.com/cinelog/catalog-api/internal/events"
	"github.com/cinelog/catalog-api/internal/logging"
	"github.com/cinelog/catalog-api/internal/metrics"
	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/store"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("catalog-api/catalog")

const publishTimeout = 5 * time.Second

// Outcome tags a successful create.
type Outcome int

const (
	// Committed means the movie exists and is linked to its owner.
	Committed Outcome = iota
	// CommittedWithWarning means the movie exists but the owner link failed.
	CommittedWithWarning
)

func (o Outcome) String() string {
	if o == CommittedWithWarning {
		return "committed_with_warning"
	}
	return "committed"
}

// Result describes a committed create.
type Result struct {
	Outcome  Outcome
	MovieID  string
	ImageKey string
	LinkErr  error
}

// Writer is the Catalog Writer.
type Writer struct {
	users     store.UserStore
	movies    store.MovieStore
	blobs     blob.Store
	publisher events.Publisher
	logger    *logrus.Logger
}

func NewWriter(users store.UserStore, movies store.MovieStore, blobs blob.Store, publisher events.Publisher, logger *logrus.Logger) *Writer {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Writer{
		users:     users,
		movies:    movies,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateMovie adds a movie owned by user. user and filter come from the
// Identity Guard; a nil user is rejected before any storage is touched.
//
// Errors: Unauthorized, Conflict (pair exists, nothing written), BlobError
// (nothing written), StoreError (image deleted again). An owner link failure
// is not an error: the result carries CommittedWithWarning and LinkErr.
func (w *Writer) CreateMovie(ctx context.Context, user *models.User, filter models.SessionFilter, title, author string, image []byte) (Result, error) {
	ctx, span := tracer.Start(ctx, "catalog.create_movie", trace.WithAttributes(
		attribute.String("movie.title", title),
		attribute.String("movie.author", author),
		attribute.Int("image.size", len(image)),
	))
	defer span.End()

	res, err := w.createMovie(ctx, user, filter, title, author, image)
	if err != nil {
		outcome := failureOutcome(err)
		retryable := isRetryable(err)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("error.retryable", retryable))
		metrics.RecordCatalogWrite(outcome)

		entry := w.logger.WithError(err).WithFields(logrus.Fields{
			"outcome":   outcome,
			"retryable": retryable,
		})
		if user != nil {
			entry = entry.WithField("username", user.Name)
		}
		if retryable {
			entry.Error("Catalog write failed")
		} else {
			entry.Warn("Catalog write rejected")
		}
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("movie.id", res.MovieID),
		attribute.String("catalog.outcome", res.Outcome.String()),
	)
	metrics.RecordCatalogWrite(res.Outcome.String())
	return res, nil
}

func (w *Writer) createMovie(ctx context.Context, user *models.User, filter models.SessionFilter, title, author string, image []byte) (Result, error) {
	if user == nil {
		return Result{}, apperrors.Unauthorized(nil)
	}
	log := logging.WithUser(w.logger, user.Name)

	if err := w.checkUnique(ctx, title, author); err != nil {
		return Result{}, err
	}

	key := blob.NewKey()
	if err := w.putImage(ctx, key, image); err != nil {
		return Result{}, apperrors.BlobError(err)
	}

	movieID, err := w.insertMovie(ctx, &models.Movie{
		Title:    title,
		Author:   author,
		ImageURL: key,
	})
	if err != nil {
		w.compensate(ctx, log, key, title, author)
		if errors.Is(err, store.ErrConflict) {
			return Result{}, apperrors.Conflict(apperrors.MsgMovieExists, err)
		}
		return Result{}, apperrors.StoreError(err)
	}

	res := Result{Outcome: Committed, MovieID: movieID, ImageKey: key}
	entry := logging.WithMovie(log, movieID, key)

	if err := w.linkOwner(ctx, filter, movieID); err != nil {
		res.Outcome = CommittedWithWarning
		res.LinkErr = err
		entry.WithError(err).Error("Movie committed without owner link")
		metrics.RecordOwnerLinkFailure()
		w.publish(ctx, entry, events.Event{
			Type:     events.TypeMovieOwnerLinkFailed,
			MovieID:  movieID,
			ImageKey: key,
			Username: user.Name,
			Title:    title,
			Author:   author,
			Error:    err.Error(),
		})
		return res, nil
	}

	entry.Info("Movie added")
	w.publish(ctx, entry, events.Event{
		Type:     events.TypeMovieCreated,
		MovieID:  movieID,
		ImageKey: key,
		Username: user.Name,
		Title:    title,
		Author:   author,
	})
	return res, nil
}

func (w *Writer) checkUnique(ctx context.Context, title, author string) error {
	ctx, span := tracer.Start(ctx, "catalog.check_unique")
	defer span.End()

	_, err := w.movies.FindByTitleAuthor(ctx, title, author)
	switch {
	case err == nil:
		return apperrors.Conflict(apperrors.MsgMovieExists, nil)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		span.RecordError(err)
		return apperrors.StoreError(err)
	}
}

func (w *Writer) putImage(ctx context.Context, key string, image []byte) error {
	ctx, span := tracer.Start(ctx, "catalog.put_image", trace.WithAttributes(attribute.String("image.key", key)))
	defer span.End()

	err := w.blobs.Put(ctx, key, image, blob.ImageContentType)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (w *Writer) insertMovie(ctx context.Context, movie *models.Movie) (string, error) {
	ctx, span := tracer.Start(ctx, "catalog.insert_movie")
	defer span.End()

	id, err := w.movies.Insert(ctx, movie)
	if err != nil {
		span.RecordError(err)
	}
	return id, err
}

func (w *Writer) linkOwner(ctx context.Context, filter models.SessionFilter, movieID string) error {
	ctx, span := tracer.Start(ctx, "catalog.link_owner", trace.WithAttributes(attribute.String("movie.id", movieID)))
	defer span.End()

	err := w.users.AppendCreatedMovie(ctx, filter, movieID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// compensate deletes an image whose movie record was never written. It runs
// even when the request context is already done.
func (w *Writer) compensate(ctx context.Context, log *logrus.Entry, key, title, author string) {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "catalog.delete_image", trace.WithAttributes(attribute.String("image.key", key)))
	defer span.End()

	err := w.blobs.Delete(ctx, key)
	if err == nil {
		return
	}

	span.RecordError(err)
	entry := log.WithError(err).WithField("image_key", key)
	entry.Error("Failed to delete orphaned image")
	metrics.RecordOrphanedBlob("compensation_failed")
	w.publish(ctx, entry, events.Event{
		Type:     events.TypeMovieBlobOrphaned,
		ImageKey: key,
		Title:    title,
		Author:   author,
		Error:    err.Error(),
	})
}

func (w *Writer) publish(ctx context.Context, log *logrus.Entry, event events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithField("event_type", event.Type).Warn("Failed to publish catalog event")
	}
}

// isRetryable reports whether the caller may retry the same request.
func isRetryable(err error) bool {
	appErr, ok := apperrors.As(err)
	return ok && appErr.IsRetryable()
}

func failureOutcome(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return "internal_error"
	}
	switch appErr.Code {
	case apperrors.CodeConflict:
		return "conflict"
	case apperrors.CodeUnauthorized:
		return "unauthorized"
	case apperrors.CodeStoreError:
		return "store_error"
	case apperrors.CodeBlobError:
		return "blob_error"
	default:
		return "internal_error"
	}
}
