// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// quicsock-bench is a load generator for quicsockd. Each connection issues
// iter_count operations: one percent are sets sent as pushes, the rest are
// gets sent as requests.
//
//	Usage: quicsock-bench address port conn_count iter_count
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/client"
	"github.com/dtn7/quicsock/pkg/kvstore"
)

const (
	// setRatio is the share of sets among all operations, in percent.
	setRatio = 1

	// keySpace is the number of distinct keys used.
	keySpace = 128

	// printedSamples is the number of raw latency samples printed.
	printedSamples = 10
)

// sample is the latency of one operation.
type sample struct {
	set     bool
	latency time.Duration
}

// result of a single connection.
type result struct {
	samples []sample
	errors  int
}

func runConnection(ctx context.Context, address string, iterations int, seed int64) (res result, err error) {
	conn, err := client.Dial(ctx, address, client.Options{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close()

	kv := kvstore.NewClient(conn)
	rnd := rand.New(rand.NewSource(seed))
	value := make([]byte, 64)

	res.samples = make([]sample, 0, iterations)
	for i := 0; i < iterations; i++ {
		key := fmt.Sprintf("key-%d", rnd.Intn(keySpace))
		isSet := rnd.Intn(100) < setRatio

		start := time.Now()
		var opErr error
		if isSet {
			rnd.Read(value)
			opErr = kv.Set(ctx, key, value)
		} else {
			_, _, opErr = kv.Get(ctx, key)
		}
		latency := time.Since(start)

		if opErr != nil {
			log.WithFields(log.Fields{
				"key":   key,
				"set":   isSet,
				"error": opErr,
			}).Debug("Operation failed")
			res.errors++
			continue
		}
		res.samples = append(res.samples, sample{set: isSet, latency: latency})
	}
	return
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func report(kind string, latencies []time.Duration) {
	if len(latencies) == 0 {
		fmt.Printf("%-4s no samples\n", kind)
		return
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	fmt.Printf("%-4s n=%-8d min=%-12v avg=%-12v p50=%-12v p99=%-12v max=%v\n",
		kind, len(latencies), latencies[0], sum/time.Duration(len(latencies)),
		percentile(latencies, 0.5), percentile(latencies, 0.99), latencies[len(latencies)-1])
}

func main() {
	if len(os.Args) != 5 {
		log.Fatalf("Usage: %s address port conn_count iter_count", os.Args[0])
	}

	port, portErr := strconv.ParseUint(os.Args[2], 10, 16)
	connCount, connErr := strconv.Atoi(os.Args[3])
	iterCount, iterErr := strconv.Atoi(os.Args[4])
	if portErr != nil || connErr != nil || iterErr != nil || connCount <= 0 || iterCount <= 0 {
		log.Fatal("port, conn_count and iter_count must be positive numbers")
	}

	address := net.JoinHostPort(os.Args[1], strconv.FormatUint(port, 10))
	ctx := context.Background()

	log.WithFields(log.Fields{
		"address":     address,
		"connections": connCount,
		"iterations":  iterCount,
	}).Info("Starting benchmark")

	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		results []result
	)

	start := time.Now()
	for i := 0; i < connCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			res, err := runConnection(ctx, address, iterCount, time.Now().UnixNano()+int64(i))
			if err != nil {
				log.WithFields(log.Fields{
					"connection": i,
					"error":      err,
				}).Warn("Connection failed")
				return
			}

			mutex.Lock()
			results = append(results, res)
			mutex.Unlock()
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var gets, sets, raw []time.Duration
	errors := 0
	for _, res := range results {
		errors += res.errors
		for _, s := range res.samples {
			if s.set {
				sets = append(sets, s.latency)
			} else {
				gets = append(gets, s.latency)
			}
			if len(raw) < printedSamples {
				raw = append(raw, s.latency)
			}
		}
	}

	fmt.Printf("%d connections, %d operations, %d errors in %v\n",
		len(results), len(gets)+len(sets), errors, elapsed)
	fmt.Printf("samples: %v\n", raw)
	report("get", gets)
	report("set", sets)
}
