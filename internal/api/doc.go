// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

/*
Package api serves recommendations over HTTP.

Routes are mounted on a chi router under /api/v1:

	GET  /health                           store reachability and catalog generation
	GET  /popular?limit=                   most purchased items
	GET  /recommendations/{orderID}        recommendations for a stored order
	GET  /similar-items/{item}             nearest items for one variant
	GET  /similar-items/{item}/fused       reciprocal rank fusion across variants
	GET  /co-purchased/{item}              stored co-occurrence partners
	POST /basket                           nearest items to a basket centroid
	GET  /embeddings/{item}?variant=       a stored vector
	GET  /snapshot                         catalog metadata

Every response uses the envelope {status, data, metadata, error}. A
store that cannot be read answers 503; an item with no data answers 200
with popularity items and a query_error.
*/
package api
