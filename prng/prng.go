// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package prng provides the seeded pseudo-random generators of the simulated Thread stack. A fixed root seed
// makes simulated partition ids, datasets and timing jitter reproducible across runs.
package prng

import (
	"math/rand"
	"sync"
	"time"
)

type RandomSeed int64

var (
	lock                      sync.Mutex
	rootRand                  *rand.Rand
	newStackRandSeedGenerator *rand.Rand
	jitterRandGenerator       *rand.Rand
)

func init() {
	Init(0)
}

// Init initializes the prng package, either with a fixed PRNG seed (rootSeed != 0) or a 'random' time-based PRNG
// seed (if rootSeed == 0).
func Init(rootSeed int64) {
	lock.Lock()
	defer lock.Unlock()

	if rootSeed == 0 {
		rootSeed = time.Now().UnixNano()
	}
	rootRand = rand.New(rand.NewSource(rootSeed))
	newStackRandSeedGenerator = rand.New(rand.NewSource(rootSeed + rootRand.Int63n(1e10)))
	jitterRandGenerator = rand.New(rand.NewSource(rootSeed + rootRand.Int63n(1e10)))
}

// NewStackRandomSeed generates unique random-seeds for newly created simulated stacks.
func NewStackRandomSeed() RandomSeed {
	lock.Lock()
	defer lock.Unlock()
	return RandomSeed(newStackRandSeedGenerator.Int63())
}

// NewRand creates a generator from a seed obtained with NewStackRandomSeed.
func NewRand(seed RandomSeed) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}

// Jitter returns a random duration in [0, max).
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	lock.Lock()
	defer lock.Unlock()
	return time.Duration(jitterRandGenerator.Int63n(int64(max)))
}
