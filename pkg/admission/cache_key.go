/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package admission

import (
	"bytes"
	"sync"
	"time"
)

const dayKeyLayout = "20060102"

// CacheKeyGenerator builds the counter keys for one identity. Key shapes:
//
//	{prefix}:req:{identity}:minute
//	{prefix}:chars:{identity}:{YYYYMMDD}
type CacheKeyGenerator struct {
	Prefix string
	pool   sync.Pool // Use buffer pool to improve performance
}

func NewCacheKeyGenerator(prefix string) *CacheKeyGenerator {
	return &CacheKeyGenerator{
		Prefix: prefix,
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// MinuteKey returns the per-minute request counter key for identity.
func (g *CacheKeyGenerator) MinuteKey(identity string) string {
	b := g.pool.Get().(*bytes.Buffer)
	defer g.pool.Put(b)
	b.Reset()

	b.WriteString(g.Prefix)
	b.WriteString(":req:")
	b.WriteString(identity)
	b.WriteString(":minute")

	return b.String()
}

// DayKey returns the daily unit counter key for identity on the given day
// (service-local clock).
func (g *CacheKeyGenerator) DayKey(identity string, day time.Time) string {
	b := g.pool.Get().(*bytes.Buffer)
	defer g.pool.Put(b)
	b.Reset()

	b.WriteString(g.Prefix)
	b.WriteString(":chars:")
	b.WriteString(identity)
	b.WriteByte(':')
	b.WriteString(day.Format(dayKeyLayout))

	return b.String()
}
