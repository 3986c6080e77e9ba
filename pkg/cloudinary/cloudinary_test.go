package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicID(t *testing.T) {
	cases := map[string]string{
		"go-basics.png":              "go-basics",
		"Go Basics (Final).JPG":      "go-basics-final",
		"nested/dir/cover.webp":      "cover",
		"___.gif":                    "course-image",
		"ui-ux-design-masterclass-1": "ui-ux-design-masterclass-1",
	}
	for input, expected := range cases {
		require.Equal(t, expected, PublicID(input), input)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)

	store, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/learnhub/courses/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "learnhub/courses", store.folder)
}
