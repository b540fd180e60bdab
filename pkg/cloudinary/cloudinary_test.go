package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicID(t *testing.T) {
	at := time.Unix(1700000000, 0)

	require.Equal(t, "leaf-diagram-final-1700000000", publicID("Leaf Diagram (final).pdf", at))
	require.Equal(t, "material-1700000000", publicID("(((.docx", at))
	require.Equal(t, "chapter-3-1700000000", publicID("chapter 3", at))
}

func TestSessionFolder(t *testing.T) {
	require.Equal(t, "lesson-plans/12/session-3", SessionFolder(12, 3))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNotConfigured)

	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/teachmate/materials/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "teachmate/materials", svc.root)
	require.Equal(t, 60*time.Second, svc.timeout)
}
