// Command nkftlsim wires the FTL core (internal/nkftl) to an in-memory
// flash simulator (internal/flashsim), a telemetry sink
// (internal/telemetry), and a cron-driven background GC heartbeat
// (internal/sched), runs a randomized write/read/discard workload against
// it, and exposes a small gRPC inspection service while it runs. Grounded
// on the wiring style of the teacher's cmd/server (now removed from this
// tree, its wiring absorbed into server.go) and the uuid-tagged run IDs
// from internal/runid.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"

	"google.golang.org/grpc"

	"github.com/flashlab/nkftlsim/internal/flashconfig"
	"github.com/flashlab/nkftlsim/internal/flashsim"
	"github.com/flashlab/nkftlsim/internal/nkftl"
	"github.com/flashlab/nkftlsim/internal/nkftlconfig"
	"github.com/flashlab/nkftlsim/internal/runid"
	"github.com/flashlab/nkftlsim/internal/sched"
	"github.com/flashlab/nkftlsim/internal/telemetry"
)

var (
	flagPagesPerBlock    = flag.Int("pages-per-block", 8, "flash geometry: pages per block")
	flagBlocksPerChannel = flag.Int("blocks-per-channel", 64, "flash geometry: blocks per channel")
	flagChannels         = flag.Int("channels", 4, "flash geometry: channel count")
	flagPageSize         = flag.Int("page-size", 512, "simulated page size in bytes")

	flagNBlocksInGroup  = flag.Int("n", 4, "NKFTL: logical blocks per data group")
	flagMaxLogBlocks    = flag.Int("k", 2, "NKFTL: max log blocks per data group")
	flagGCHigh          = flag.Float64("gc-high", 0.85, "GC high watermark ratio")
	flagGCLow           = flag.Float64("gc-low", 0.6, "GC low watermark ratio")
	flagStripeSize      = flag.Int("stripe-size", nkftlconfig.StripeInfinity, "pages per channel per allocation round (-1 = infinity)")

	flagOps       = flag.Int("ops", 1000, "number of randomized LPN operations to run")
	flagSeed      = flag.Int64("seed", 1, "workload PRNG seed")
	flagRecorder  = flag.String("recorder", "log", `telemetry recorder: "log" or "sqlite"`)
	flagSqlitePath = flag.String("sqlite-path", "nkftlsim_telemetry.db", "path for the sqlite recorder")
	flagVerbose   = flag.Bool("v", false, "verbose telemetry logging")

	flagCron = flag.String("gc-cron", "@every 1s", "cron spec for the background GC heartbeat")
	flagGRPC = flag.String("grpc", ":9191", "gRPC inspection listen address (empty to disable)")
)

func main() {
	flag.Parse()
	runID := runid.New()
	log.Printf("nkftlsim run %s starting", runID)

	geom := flashconfig.Geometry{
		PagesPerBlock:    *flagPagesPerBlock,
		BlocksPerChannel: *flagBlocksPerChannel,
		Channels:         *flagChannels,
	}
	if err := geom.Validate(); err != nil {
		log.Fatalf("invalid geometry: %v", err)
	}

	cfg := nkftlconfig.Config{
		NBlocksInDataGroup:  *flagNBlocksInGroup,
		MaxBlocksInLogGroup: *flagMaxLogBlocks,
		GCThresholdRatio:    *flagGCHigh,
		GCLowThresholdRatio: *flagGCLow,
		StripeSize:          *flagStripeSize,
	}

	rec, closeRec := newRecorder()
	defer closeRec()

	device := flashsim.New(geom, *flagPageSize)
	ftl, err := nkftl.New(geom, cfg, device, rec)
	if err != nil {
		log.Fatalf("nkftl.New: %v", err)
	}

	scheduler := sched.New(func(ctx context.Context) error {
		return ftl.TryGC(ctx, "heartbeat")
	})
	if err := scheduler.Start(*flagCron); err != nil {
		log.Fatalf("scheduler.Start: %v", err)
	}
	defer scheduler.Stop()

	if *flagGRPC != "" {
		go serveInspect(ftl, *flagGRPC)
	}

	runWorkload(ftl, geom)
	log.Printf("nkftlsim run %s finished: %d blocks used of %d (%.1f%%), %d LBNs mapped",
		runID, ftl.Pool.TotalUsedBlocks(), geom.BlocksPerDev(), ftl.Pool.UsedRatio()*100, ftl.DataMap.Len())
}

func newRecorder() (telemetry.Recorder, func()) {
	if *flagRecorder == "sqlite" {
		r, err := telemetry.NewSQLiteRecorder(*flagSqlitePath, runid.New(), *flagVerbose)
		if err != nil {
			log.Fatalf("telemetry.NewSQLiteRecorder: %v", err)
		}
		return r, func() { r.Close() }
	}
	return telemetry.NewLogRecorder(*flagVerbose), func() {}
}

func serveInspect(ftl *nkftl.FTL, addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("gRPC listen error: %v", err)
		return
	}
	gs := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	registerInspectServer(gs, &inspectServer{ftl: ftl})
	log.Printf("gRPC inspection listening on %s", addr)
	if err := gs.Serve(lis); err != nil {
		log.Printf("gRPC serve error: %v", err)
	}
}

// runWorkload exercises read_ext/write_ext/discard_ext with a randomized
// mix of operations over a fixed logical address space, the demo-scale
// analogue of the randomized integrity scenario from spec.md §8.
func runWorkload(ftl *nkftl.FTL, geom flashconfig.Geometry) {
	rng := rand.New(rand.NewSource(*flagSeed))
	ctx := context.Background()
	numLPNs := *flagNBlocksInGroup * geom.PagesPerBlock * 4
	shadow := make(map[nkftl.LPN][]byte)

	for i := 0; i < *flagOps; i++ {
		lpn := nkftl.LPN(rng.Intn(numLPNs))
		switch rng.Intn(10) {
		case 0, 1: // discard
			if err := ftl.LBADiscard(ctx, lpn, "workload"); err != nil {
				log.Fatalf("op %d: discard lpn %d: %v", i, lpn, err)
			}
			delete(shadow, lpn)
		case 2, 3, 4: // read + verify
			buf, err := ftl.LBARead(ctx, lpn, "workload")
			if err != nil {
				log.Fatalf("op %d: read lpn %d: %v", i, lpn, err)
			}
			if want, ok := shadow[lpn]; ok && string(buf[:len(want)]) != string(want) {
				log.Fatalf("op %d: integrity violation at lpn %d: got %q want %q", i, lpn, buf, want)
			}
		default: // write
			data := []byte(fmt.Sprintf("lpn=%d op=%d", lpn, i))
			if err := ftl.LBAWrite(ctx, lpn, data, "workload"); err != nil {
				log.Fatalf("op %d: write lpn %d: %v", i, lpn, err)
			}
			shadow[lpn] = data
		}
	}
}
