package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/for-the-record/internal/domain"
)

func TestFirestoreStoryConversion(t *testing.T) {
	t.Parallel()

	in := testStory("The river")
	in.ID = "story-1"
	in.CreatedAt = time.Unix(1_700_000_000, 0).UTC()

	doc := toFirestoreStory(in)
	assert.Equal(t, []string{"quiet", "cold", "alive"}, doc.ThreeWords)
	assert.Equal(t, "user", doc.SessionTranscript[1].Role)

	out := fromFirestoreStory("story-1", doc)
	assert.Equal(t, in, out)
}

func TestFirestoreStoryConversionNilSlices(t *testing.T) {
	t.Parallel()

	doc := toFirestoreStory(&domain.Story{Title: "bare"})
	assert.NotNil(t, doc.Tags)
	assert.NotNil(t, doc.Themes)

	out := fromFirestoreStory("x", firestoreStory{Title: "bare", ThreeWords: []string{"one"}})
	assert.Equal(t, [3]string{"one", "", ""}, out.ThreeWords)
	assert.Equal(t, []string{}, out.Tags)
	assert.Equal(t, []domain.Turn{}, out.SessionTranscript)
}
