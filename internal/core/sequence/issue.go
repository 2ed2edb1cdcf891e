package sequence

import (
	"context"

	"backoffice/internal/core/apperror"
)

// NextIdentifier validates prefix, advances the kind's counter for it and
// renders the allocated identifier.
func NextIdentifier(ctx context.Context, c Counter, kind Kind, prefix string, autoCreate bool) (string, error) {
	if err := kind.ValidatePrefix(prefix); err != nil {
		return "", err
	}
	n, err := c.Next(ctx, kind.Key(prefix), autoCreate)
	if err != nil {
		return "", err
	}
	return Format(kind, prefix, n)
}

// PreviewIdentifier renders the identifier the next allocation would return.
// A prefix without a counter previews as number 1, which is what the first
// auto-created allocation yields.
func PreviewIdentifier(ctx context.Context, c Counter, kind Kind, prefix string) (string, error) {
	if err := kind.ValidatePrefix(prefix); err != nil {
		return "", err
	}
	n, err := c.Preview(ctx, kind.Key(prefix))
	if apperror.IsNotFound(err) {
		n, err = 1, nil
	}
	if err != nil {
		return "", err
	}
	return Format(kind, prefix, n)
}
