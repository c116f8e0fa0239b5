// Command wireproto-node is a small demo binary exercising the Client and
// Server pair over a real socket: it can listen, connect, or both, and
// echoes ping packets back as responses carrying the same ping tag.
// Grounded on the teacher's
// cmd/srv/server.go (flag layout, ipaddr.GetExternalIP for the advertised
// address) and cmd/jcp/jcp.go (goterminal status line).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/apoorvam/goterminal"
	"github.com/glycerine/ipaddr"

	"github.com/coreswarm/wireproto"
)

func main() {
	listenAddr := flag.String("listen", "", "address to listen on, e.g. 0.0.0.0:8443 or [::]:8443")
	connectAddr := flag.String("connect", "", "address of a peer to connect to and ping")
	verbose := flag.Bool("v", false, "enable verbose logging")
	flag.Parse()

	cfg := wireproto.DefaultConfig()
	cfg.Verbose = *verbose

	if *listenAddr == "" && *connectAddr == "" {
		fmt.Fprintln(os.Stderr, "wireproto-node: at least one of -listen or -connect is required")
		os.Exit(2)
	}

	var server *wireproto.Server
	if *listenAddr != "" {
		if _, err := wireproto.Parse(*listenAddr); err != nil {
			fmt.Fprintf(os.Stderr, "wireproto-node: bad -listen address: %v\n", err)
			os.Exit(2)
		}
		ln, err := net.Listen("tcp", *listenAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wireproto-node: listen failed: %v\n", err)
			os.Exit(1)
		}
		server = wireproto.NewServer(echoNode{})
		go func() {
			if err := server.Serve(ln); err != nil {
				fmt.Fprintf(os.Stderr, "wireproto-node: serve exited: %v\n", err)
			}
		}()

		hostIP := ipaddr.GetExternalIP() // e.g. 100.x.x.x
		fmt.Printf("listening on %s (advertised host %s)\n", *listenAddr, hostIP)
	}

	var client *wireproto.Client
	if *connectAddr != "" {
		addr, err := wireproto.Parse(*connectAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wireproto-node: bad -connect address: %v\n", err)
			os.Exit(2)
		}
		client = wireproto.NewClient(addr, cfg)
	}

	if client == nil {
		select {}
	}

	statusLine(client)
}

// echoNode replies to any ping with the same body, as a response packet
// with the same nonce and the ping tag.
type echoNode struct{}

func (echoNode) HandleServerPacket(ctx *wireproto.Context, conn *wireproto.ServerConn, hdr wireproto.PacketHeader, body io.Reader) error {
	if hdr.Tag != wireproto.TagPing {
		return nil
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, body); err != nil {
		return err
	}
	w := conn.Writer()
	framed := make([]byte, wireproto.HeaderSize+buf.Len())
	wireproto.Encode(wireproto.PacketHeader{
		Len:   uint32(buf.Len()),
		Nonce: hdr.Nonce,
		Op:    wireproto.OpResponse,
		Tag:   wireproto.TagPing,
	}, framed[:wireproto.HeaderSize])
	copy(framed[wireproto.HeaderSize:], buf.Bytes())
	if _, err := w.Write(framed); err != nil {
		return err
	}
	w.Release()
	return nil
}

// statusLine sends one ping, then redraws pool/breaker status until the
// process is killed.
func statusLine(client *wireproto.Client) {
	ctx := wireproto.NewContext("demo")
	reqCtx := wireproto.WithContext(ctx, "ping")
	go func() {
		reply, err := client.SendRequest(reqCtx, wireproto.TagPing, []byte("hello"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "ping failed: %v\n", err)
			return
		}
		fmt.Printf("ping reply: %q\n", string(reply))
	}()

	writer := goterminal.New(os.Stdout)
	for range time.Tick(time.Second) {
		now := time.Now()
		writer.Clear()
		fmt.Fprintf(writer, "wireproto-node running, %s\n", now.Format(time.RFC3339))
		fmt.Fprintf(writer, "pool size: %d  alive: %d  breaker: %s\n",
			client.PoolSize(), client.AliveCount(), client.BreakerState(now))
		writer.Print()
	}
}
