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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyGenerator(t *testing.T) {
	g := NewCacheKeyGenerator("rate_limit")
	day := time.Date(2025, 3, 7, 15, 4, 5, 0, time.Local)

	assert.Equal(t, "rate_limit:req:203.0.113.9:minute", g.MinuteKey("203.0.113.9"))
	assert.Equal(t, "rate_limit:chars:203.0.113.9:20250307", g.DayKey("203.0.113.9", day))
	assert.Equal(t, "rate_limit:req:unknown:minute", g.MinuteKey(UnknownIdentity))
}

func TestCacheKeyGeneratorConcurrent(t *testing.T) {
	g := NewCacheKeyGenerator("rate_limit")
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.Local)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "rate_limit:req:a:minute", g.MinuteKey("a"))
				assert.Equal(t, "rate_limit:chars:b:20250307", g.DayKey("b", day))
			}
		}()
	}
	wg.Wait()
}
