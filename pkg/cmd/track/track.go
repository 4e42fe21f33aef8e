package track

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/track"
)

var (
	seed         int64
	difficulty   string
	fuelStations int
	length       float64
	output       string
)

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "commands to manage track files",
	}

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newInfoCmd())
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generates a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := track.ParseDifficulty(difficulty)
			if err != nil {
				return err
			}
			t, err := track.NewGenerator(
				track.WithDifficulty(d),
				track.WithFuelStations(fuelStations),
				track.WithLength(length),
			).Generate(seed)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return track.Write(os.Stdout, t, track.FormatYAML)
			}
			if err := track.Save(output, t); err != nil {
				return err
			}
			log.GetFromContext(cmd.Context()).Info("track written",
				log.String("file", output),
				log.Int("segments", len(t.Segments)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 1, "track seed")
	cmd.Flags().StringVar(&difficulty, "difficulty", "medium", "obstacle density (none, easy, medium, hard)")
	cmd.Flags().IntVar(&fuelStations, "fuel-stations", track.DefaultFuelStations, "number of fuel stations")
	cmd.Flags().Float64Var(&length, "length", track.DefaultLength, "lap length in meters")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.yaml or .json), default stdout")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info file",
		Short: "validates a track file and shows its features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := track.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:          %s\n", t.Name)
			fmt.Printf("Lap distance:  %.0f m (%d segments)\n", t.LapDistance, len(t.Segments))
			fmt.Printf("Lanes:         %d\n", t.Lanes)
			fmt.Printf("Fuel stations: %v\n", t.FuelStations)
			fmt.Printf("Boost pads:    %v\n", t.BoostPads)
			fmt.Printf("Obstacles:     %d\n", len(t.Obstacles))
			if t.PitLaneEntry > 0 {
				fmt.Printf("Pit lane:      %.0f - %.0f m\n", t.PitLaneEntry, t.PitLaneExit)
			}
			return nil
		},
	}
}
