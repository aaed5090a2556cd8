package dialogue

import "errors"

// ErrEmptyQuestion is returned when the model answers with blank text.
var ErrEmptyQuestion = errors.New("dialogue: model returned an empty question")
