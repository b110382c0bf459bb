package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mq "github.com/yeisme/mediavault/pkg/internal/storage/mq"
	"github.com/yeisme/mediavault/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "Message queue related commands",
		Aliases: []string{"messagequeue"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered mq types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered mq types:")
			for _, t := range mq.GetRegisteredMQTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	// mqTopicsCmd 打印流水线主题、对应 worker 与 NATS subject.
	mqTopicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "list pipeline topics and the workers consuming them",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, kind := range queue.Kinds {
				for _, stage := range queue.Stages {
					topic := queue.Topic(kind, stage)
					fmt.Fprintf(out, "%-22s %-18s %s\n", topic, queue.WorkerName(kind, stage), mq.NATSSubject(topic))
				}
			}

			fmt.Fprintf(out, "%-22s %-18s %s\n", queue.TopicPoison, "-", mq.NATSSubject(queue.TopicPoison))
		},
	}
)

// registerMQCommands 注册 MQ 相关命令.
func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqListCmd, mqTopicsCmd)
}
