// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import "context"

type collectionKey struct{}

// WithCollection stores the collection the current conversation targets.
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, collectionKey{}, collection)
}

// CollectionFromContext returns the collection set by WithCollection.
func CollectionFromContext(ctx context.Context) string {
	collection, _ := ctx.Value(collectionKey{}).(string)
	return collection
}
