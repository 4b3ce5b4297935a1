package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/joshp123/null-webhook/internal/config"
	"github.com/joshp123/null-webhook/internal/readiness"
)

const defaultHealthAddr = "127.0.0.1:9583"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	addr := envOrDefault(config.EnvHealthAddr, defaultHealthAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	switch os.Args[1] {
	case "health":
		healthCmd(ctx, conn, os.Args[2:])
	case "services":
		servicesCmd(ctx, conn)
	default:
		usage()
		os.Exit(2)
	}
}

func healthCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	flags := flag.NewFlagSet("health", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON to stdout")
	_ = flags.Parse(args)

	service := ""
	if flags.NArg() > 0 {
		service = flags.Arg(0)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		fatal("health", err)
	}
	if *jsonOut {
		data, err := protojson.Marshal(resp)
		if err != nil {
			fatal("format json", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(resp.GetStatus())
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	services, err := grpcurl.ListServices(grpcurl.DescriptorSourceFromServer(ctx, client))
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func usage() {
	fmt.Println("null-webhook-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Printf("  health [--json] [service]   service is %q, or omitted for the whole process\n", readiness.DefaultHealthService)
	fmt.Println("  services")
	fmt.Println("")
	fmt.Printf("The address is read from %s (default %s).\n", config.EnvHealthAddr, defaultHealthAddr)
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
