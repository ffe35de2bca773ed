// Command fiberloopdemo demonstrates the fiber reactor end to end:
// - Creating an FdBridge and a pipe
// - Spawning fibers that perform fiber-synchronous I/O
// - Using Fiber.Sleep for timer-wheel-driven suspension
// - Cross-fiber FLS access via Reactor.ResolveArea
//
// Run with: go run ./cmd/fiberloopdemo/
package main

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-fiberloop/fdbridge"
	"github.com/joeycumines/go-fiberloop/fls"
	"github.com/joeycumines/go-fiberloop/reactor"
)

var tickSlot = fls.AllocSlot[int](0)

func main() {
	r := reactor.New(reactor.WithMaxFibers(64))

	bridge, err := fdbridge.New(r)
	if err != nil {
		panic(err)
	}
	defer bridge.Close()

	rd, wr, err := bridge.Pipe()
	if err != nil {
		panic(err)
	}

	writer, err := r.Spawn(func(f *reactor.Fiber) {
		for i := 0; i < 3; i++ {
			*fls.Get(tickSlot) = i
			msg := fmt.Sprintf("tick %d\n", i)
			if _, err := wr.Write([]byte(msg)); err != nil {
				fmt.Printf("write: %v\n", err)
				return
			}
			if err := f.Sleep(50 * time.Millisecond); err != nil {
				fmt.Printf("sleep: %v\n", err)
				return
			}
		}
		_ = wr.Close()
	})
	if err != nil {
		panic(err)
	}

	reader, err := r.Spawn(func(f *reactor.Fiber) {
		buf := make([]byte, 256)
		for {
			n, err := rd.Read(buf)
			if n > 0 {
				fmt.Print(string(buf[:n]))
			}
			if err != nil || n == 0 {
				return
			}
		}
	})
	if err != nil {
		panic(err)
	}

	monitor, err := r.Spawn(func(f *reactor.Fiber) {
		for i := 0; i < 3; i++ {
			if err := f.Sleep(60 * time.Millisecond); err != nil {
				return
			}
			if area := r.ResolveArea(writer); area != nil {
				fmt.Printf("monitor: writer is on tick %d\n", *fls.GetIn(area, tickSlot))
			}
		}
	})
	if err != nil {
		panic(err)
	}

	go func() {
		if err := r.Run(); err != nil {
			fmt.Printf("reactor exited with: %v\n", err)
		}
	}()

	_ = r.Join(writer)
	_ = r.Join(reader)
	_ = r.Join(monitor)

	r.Stop()
	fmt.Println("done")
}
