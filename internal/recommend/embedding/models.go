// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/basketrec/internal/recommend"
)

// ModelSpec describes one pretrained sentence model.
type ModelSpec struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// DefaultModel is the text model used when none is named.
const DefaultModel = "all-minilm"

// Models is the fixed registry of supported text models.
var Models = map[string]ModelSpec{
	"msmarco": {
		Key:         "msmarco",
		Name:        "sentence-transformers/msmarco-distilbert-base-v4",
		Dimension:   768,
		MaxTokens:   512,
		Description: "MS MARCO trained model, good for search and retrieval",
	},
	"all-minilm": {
		Key:         "all-minilm",
		Name:        "sentence-transformers/all-MiniLM-L6-v2",
		Dimension:   384,
		MaxTokens:   256,
		Description: "General purpose model, fast and efficient",
	},
	"all-mpnet": {
		Key:         "all-mpnet",
		Name:        "sentence-transformers/all-mpnet-base-v2",
		Dimension:   768,
		MaxTokens:   384,
		Description: "High quality general purpose model",
	},
	"paraphrase": {
		Key:         "paraphrase",
		Name:        "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2",
		Dimension:   384,
		MaxTokens:   128,
		Description: "Multilingual model for diverse text",
	},
}

// LookupModel returns the registry entry for key.
func LookupModel(key string) (ModelSpec, error) {
	spec, ok := Models[key]
	if !ok {
		return ModelSpec{}, recommend.NewModelError(recommend.TextVariant(key), "lookup",
			fmt.Errorf("%w: %q (known: %s)", recommend.ErrUnknownModel, key, strings.Join(ModelKeys(), ", ")))
	}
	return spec, nil
}

// ModelKeys returns the registry keys in sorted order.
func ModelKeys() []string {
	keys := make([]string, 0, len(Models))
	for k := range Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var separatorReplacer = strings.NewReplacer("-", " ", "_", " ", "/", " ", `\`, " ")

// shortNameTokens is the token count at or below which a name gets the
// "product" prefix.
const shortNameTokens = 2

// Preprocess prepares an item name for a sentence model. Separators
// become spaces, whitespace is collapsed, and names of one or two words
// are prefixed with "product" so the model sees them as product names.
func Preprocess(name string) string {
	s := separatorReplacer.Replace(strings.TrimSpace(name))
	tokens := strings.Fields(s)
	if len(tokens) <= shortNameTokens {
		tokens = append([]string{"product"}, tokens...)
	}
	return strings.Join(tokens, " ")
}
