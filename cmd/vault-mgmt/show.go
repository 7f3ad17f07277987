package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current state of the members",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		pods, err := listMembers(cmd.Context(), e)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"NAME", "STATUS", "IMAGE", "INITIALIZED", "SEALED", "ACTIVE", "READY"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for i := range pods {
			pod := &pods[i]

			image := "unknown"
			if len(pod.Spec.Containers) > 0 && pod.Spec.Containers[0].Image != "" {
				image = pod.Spec.Containers[0].Image
			}

			table.Append([]string{
				pod.Name,
				string(pod.Status.Phase),
				image,
				colorBool(memberLabel(pod, e.flavor.InitializedLabel()), color.FgGreen, color.FgRed),
				colorBool(memberLabel(pod, e.flavor.SealedLabel()), color.FgRed, color.FgGreen),
				colorBool(memberLabel(pod, e.flavor.ActiveLabel()), color.FgGreen, color.FgWhite),
				colorBool(readyState(pod), color.FgGreen, color.FgWhite),
			})
		}

		table.Render()
		return nil
	},
}

func memberLabel(pod *corev1.Pod, key string) string {
	if pod.Labels == nil {
		return "unknown"
	}
	value, ok := pod.Labels[key]
	if !ok {
		return "unknown"
	}
	return value
}

func readyState(pod *corev1.Pod) string {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			switch cond.Status {
			case corev1.ConditionTrue:
				return "true"
			case corev1.ConditionFalse:
				return "false"
			}
			return "unknown"
		}
	}
	return "unknown"
}

// colorBool renders "true"/"false" in the given colors and anything else in
// yellow.
func colorBool(value string, trueColor, falseColor color.Attribute) string {
	switch value {
	case "true":
		return color.New(trueColor).Sprint(value)
	case "false":
		return color.New(falseColor).Sprint(value)
	default:
		return color.New(color.FgYellow).Sprint(value)
	}
}
