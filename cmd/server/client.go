package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"droneDispatchService/internal/auth"
	grpcserver "droneDispatchService/internal/grpc"
)

var (
	serverAddr  string
	bearerToken string
	tokenName   string
	tokenKind   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with the configured secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		tok, err := auth.Issue(cfg.Auth.JWTSecret, tokenName, tokenKind, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch DRONE_ID ORIGIN DESTINATION",
	Short: "Request a flight from a running service",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *grpcserver.DispatchClient) error {
			reply, err := c.Dispatch(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", reply.DroneID, reply.Outcome, reply.Reason)
			return nil
		})
	},
}

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Show fleet status from a running service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *grpcserver.DispatchClient) error {
			drones, err := c.ListFleet(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODEL\tBATTERY\tSTATE\tLOCATION")
			for _, d := range drones {
				fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%s\n", d.ID, d.ModelDescription, d.Battery, d.State, d.Location)
			}
			return w.Flush()
		})
	},
}

func withClient(fn func(context.Context, *grpcserver.DispatchClient) error) error {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if bearerToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+bearerToken)
	}
	return fn(ctx, grpcserver.NewDispatchClient(conn))
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "principal name")
	tokenCmd.Flags().StringVar(&tokenKind, "kind", auth.KindDispatcher, "admin, dispatcher or observer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = tokenCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{dispatchCmd, fleetCmd} {
		c.Flags().StringVar(&serverAddr, "addr", "localhost:50051", "service address")
		c.Flags().StringVar(&bearerToken, "token", os.Getenv("DRONE_TOKEN"), "bearer token")
	}
	rootCmd.AddCommand(tokenCmd, dispatchCmd, fleetCmd)
}
